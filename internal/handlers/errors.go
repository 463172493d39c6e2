package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"marketplace/internal/services"
)

// respondError maps service errors to HTTP statuses. Anything unrecognised is
// logged and answered with a generic 500.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	var (
		vErr *services.ValidationError
		pErr *services.InvalidProductError
	)

	switch {
	case errors.As(err, &vErr):
		return message(c, fiber.StatusBadRequest, vErr.Message)
	case errors.As(err, &pErr):
		return message(c, fiber.StatusBadRequest, pErr.Error())
	case errors.Is(err, services.ErrEmailTaken):
		return message(c, fiber.StatusConflict, "Email already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		return message(c, fiber.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrProductNotFound):
		return message(c, fiber.StatusNotFound, "Product not found")
	}

	logger.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return message(c, fiber.StatusInternalServerError, "Internal server error")
}

func message(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"message": msg})
}

// validationFailed renders validator errors keyed by JSON field name.
func validationFailed(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return message(c, fiber.StatusBadRequest, "Validation failed")
	}

	errorMessages := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}

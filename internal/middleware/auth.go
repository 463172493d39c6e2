package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"marketplace/internal/metrics"
	"marketplace/internal/services"
)

const claimsKey = "claims"

// TokenValidator verifies bearer tokens. *services.AuthService satisfies it.
type TokenValidator interface {
	ValidateToken(token string) (*services.Claims, error)
}

// AuthRequired is a Fiber middleware to check for a valid bearer token.
func AuthRequired(validator TokenValidator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)

		// Expected format: "Bearer <token>"
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			metrics.TokensRejected.WithLabelValues("missing").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized: token missing",
			})
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			metrics.TokensRejected.WithLabelValues(rejectReason(err)).Inc()
			logger.Debug("token rejected", zap.Error(err), zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized: invalid token",
			})
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// ClaimsFrom returns the claims stored by AuthRequired.
func ClaimsFrom(c *fiber.Ctx) (*services.Claims, bool) {
	claims, ok := c.Locals(claimsKey).(*services.Claims)
	return claims, ok && claims != nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, services.ErrTokenExpired):
		return "expired"
	case errors.Is(err, services.ErrInvalidSignature):
		return "signature"
	case errors.Is(err, services.ErrMalformedToken):
		return "malformed"
	default:
		return "other"
	}
}

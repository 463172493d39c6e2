package handlers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"marketplace/internal/middleware"
	"marketplace/internal/services"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: newValidator(),
		logger:   logger,
	}
}

// RegisterRoutes registers the order routes behind the bearer token check.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	router.Get("/orders", auth, h.HandleGetOrders)
	router.Post("/orders", auth, h.HandleCreateOrder)
	router.Post("/mpesa/checkout", auth, h.HandleMpesaCheckout)
}

// CreateOrderRequest represents the request body for a direct order.
type CreateOrderRequest struct {
	Items []services.CartItem `json:"items" validate:"dive"`
}

// MpesaCheckoutRequest represents the request body for an M-Pesa checkout.
type MpesaCheckoutRequest struct {
	Items []services.CartItem `json:"items" validate:"dive"`
	Phone string              `json:"phone"`
}

// HandleGetOrders lists the caller's orders.
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	orders, err := h.service.GetOrdersForBuyer(c.UserContext(), claims.UserID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(orders)
}

// HandleCreateOrder places a directly paid order.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return message(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	order, err := h.service.CreateOrder(c.UserContext(), claims.UserID, req.Items)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Order placed successfully",
		"order":   order,
	})
}

// HandleMpesaCheckout starts the simulated M-Pesa payment flow.
func (h *OrderHandler) HandleMpesaCheckout(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req MpesaCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return message(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	order, err := h.service.InitiateMpesaCheckout(c.UserContext(), claims.UserID, req.Items, req.Phone)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "M-Pesa checkout initiated",
		"order":   order,
		"mpesa": fiber.Map{
			"status": "initiated",
			"phone":  strings.TrimSpace(req.Phone),
		},
	})
}

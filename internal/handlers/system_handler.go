package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// apiEndpoints is the listing returned by GET /api.
var apiEndpoints = []string{
	"GET /api/health",
	"POST /api/register",
	"POST /api/login",
	"GET /api/products",
	"GET /api/products/:id",
	"GET /api/orders",
	"POST /api/orders",
	"POST /api/mpesa/checkout",
	"GET /api/admin/products",
	"POST /api/admin/products",
	"DELETE /api/admin/products/:id",
	"POST /api/admin/upload-image",
	"GET /api/admin/db/tables",
	"GET /api/admin/db/products",
}

// SystemHandler serves the API root and the health check.
type SystemHandler struct{}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler() *SystemHandler {
	return &SystemHandler{}
}

// RegisterRoutes registers the system routes.
func (h *SystemHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/", h.HandleRoot)
	router.Get("/health", h.HandleHealth)
}

// HandleRoot lists the available endpoints.
func (h *SystemHandler) HandleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":   "API root, use one of the documented endpoints",
		"endpoints": apiEndpoints,
	})
}

// HandleHealth reports liveness.
func (h *SystemHandler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Package server assembles the fiber application: middleware, API routes,
// metrics, uploaded images and the front-end build.
package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace/internal/handlers"
	"marketplace/internal/metrics"
	"marketplace/internal/middleware"
	"marketplace/internal/services"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Auth     *services.AuthService
	Products *services.ProductService
	Orders   *services.OrderService
	Logger   *zap.Logger

	AdminKey string

	// UploadDir is served under /uploads. Empty when images live in S3.
	UploadDir string
	// StaticDir holds the front-end build served with SPA fallback.
	StaticDir string

	// AccessLog enables fiber's request logger.
	AccessLog bool
}

// New builds the fiber app with every route registered.
func New(deps Deps) *fiber.App {
	// The front-end expects prices as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true

	app := fiber.New(fiber.Config{
		AppName:               "marketplace",
		BodyLimit:             16 * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(deps.Logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(cors.New())
	if deps.AccessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(metrics.Middleware())

	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")
	handlers.NewSystemHandler().RegisterRoutes(api)
	handlers.NewAuthHandler(deps.Auth, deps.Logger).RegisterRoutes(api)
	handlers.NewProductHandler(deps.Products, deps.Logger).RegisterRoutes(api)
	handlers.NewOrderHandler(deps.Orders, deps.Logger).
		RegisterRoutes(api, middleware.AuthRequired(deps.Auth, deps.Logger))
	handlers.NewAdminHandler(deps.Products, deps.Logger).
		RegisterRoutes(api, middleware.AdminRequired(deps.AdminKey))
	api.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Not found"})
	})

	if deps.UploadDir != "" {
		app.Static("/uploads", deps.UploadDir)
	}

	app.Get("/*", frontend(deps.StaticDir))

	return app
}

// frontend serves files from the build directory and falls back to
// index.html for client-side routes.
func frontend(dir string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rel := filepath.Clean("/" + c.Params("*"))
		if strings.HasPrefix(rel, "/uploads/") {
			return fiber.ErrNotFound
		}

		if dir != "" {
			if rel != "/" {
				path := filepath.Join(dir, rel)
				if info, err := os.Stat(path); err == nil && !info.IsDir() {
					return c.SendFile(path)
				}
			}

			index := filepath.Join(dir, "index.html")
			if _, err := os.Stat(index); err == nil {
				return c.SendFile(index)
			}
		}

		return c.JSON(fiber.Map{
			"message": "Frontend not built. Build the front-end into the static directory to view the UI.",
		})
	}
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}

		logger.Error("unhandled request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Internal server error"})
	}
}

package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"marketplace/internal/services"
)

// AdminHandler serves catalog management and the DB viewer.
type AdminHandler struct {
	service *services.ProductService
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service *services.ProductService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the admin routes behind guard.
func (h *AdminHandler) RegisterRoutes(router fiber.Router, guard fiber.Handler) {
	adminRoutes := router.Group("/admin", guard)
	adminRoutes.Get("/products", h.HandleListProducts)
	adminRoutes.Post("/products", h.HandleCreateProduct)
	adminRoutes.Delete("/products/:id", h.HandleDeleteProduct)
	adminRoutes.Post("/upload-image", h.HandleUploadImage)
	adminRoutes.Get("/db/tables", h.HandleListTables)
	adminRoutes.Get("/db/products", h.HandleListProducts)
}

// CreateProductRequest is the JSON form of a new product. Price may be sent
// as a number or a string.
type CreateProductRequest struct {
	Title       string `json:"title"`
	Price       any    `json:"price"`
	Description string `json:"description"`
	ArtistName  string `json:"artistName"`
	Image       string `json:"image"`
}

// HandleListProducts lists every product.
func (h *AdminHandler) HandleListProducts(c *fiber.Ctx) error {
	products, err := h.service.GetAllProducts(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(products)
}

// HandleCreateProduct accepts either a multipart form with an optional image
// file or a JSON body with an image URL.
func (h *AdminHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var (
		input  services.CreateProductInput
		upload *services.Upload
	)

	if isMultipart(c) {
		input = services.CreateProductInput{
			Title:       c.FormValue("title"),
			Price:       c.FormValue("price"),
			Description: c.FormValue("description"),
			ArtistName:  c.FormValue("artistName"),
			ImageURL:    c.FormValue("imageUrl"),
		}

		file, err := formImage(c)
		if err != nil {
			return respondError(c, h.logger, err)
		}
		if file != nil {
			defer file.Close()
			upload = file.upload
		}
	} else {
		var req CreateProductRequest
		if err := c.BodyParser(&req); err != nil {
			return message(c, fiber.StatusBadRequest, "Invalid request body")
		}
		input = services.CreateProductInput{
			Title:       req.Title,
			Price:       priceString(req.Price),
			Description: req.Description,
			ArtistName:  req.ArtistName,
			ImageURL:    req.Image,
		}
	}

	product, err := h.service.CreateProduct(c.UserContext(), input, upload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Product created",
		"product": product,
	})
}

// HandleDeleteProduct deletes a product and its uploaded image.
func (h *AdminHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	if err := h.service.DeleteProduct(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return message(c, fiber.StatusOK, "Product deleted")
}

// HandleUploadImage stores a standalone image and returns its path.
func (h *AdminHandler) HandleUploadImage(c *fiber.Ctx) error {
	var upload *services.Upload
	if isMultipart(c) {
		file, err := formImage(c)
		if err != nil {
			return respondError(c, h.logger, err)
		}
		if file != nil {
			defer file.Close()
			upload = file.upload
		}
	}

	image, err := h.service.UploadImage(c.UserContext(), upload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"image": image})
}

// HandleListTables lists the database tables.
func (h *AdminHandler) HandleListTables(c *fiber.Ctx) error {
	tables, err := h.service.ListTables(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(fiber.Map{"tables": tables})
}

type formFile struct {
	file   multipart.File
	upload *services.Upload
}

func (f *formFile) Close() error { return f.file.Close() }

// formImage opens the "image" form file. A missing or unnamed file yields nil.
func formImage(c *fiber.Ctx) (*formFile, error) {
	header, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, fasthttp.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read image form file: %w", err)
	}
	if strings.TrimSpace(header.Filename) == "" {
		return nil, nil
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded image: %w", err)
	}
	return &formFile{
		file:   file,
		upload: &services.Upload{Filename: header.Filename, Reader: file},
	}, nil
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// priceString normalises a JSON price for decimal parsing.
func priceString(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	case float64:
		return strconv.FormatFloat(p, 'f', -1, 64)
	default:
		return fmt.Sprint(p)
	}
}

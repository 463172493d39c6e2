package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace/internal/models"
	"marketplace/internal/repositories"
	"marketplace/internal/storage"
)

var allowedImageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
}

// TableLister lists the tables of the backing store.
type TableLister interface {
	Tables(ctx context.Context) ([]string, error)
}

// Upload is an image file received from a client.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// CreateProductInput carries the admin form fields. Price stays a string so
// multipart and JSON bodies go through the same parsing.
type CreateProductInput struct {
	Title       string
	Price       string
	Description string
	ArtistName  string
	ImageURL    string
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo   repositories.ProductRepository
	tables TableLister
	store  storage.Store
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, tables TableLister, store storage.Store, clock clockwork.Clock, logger *zap.Logger) *ProductService {
	return &ProductService{
		repo:   repo,
		tables: tables,
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// GetAllProducts retrieves all products, newest first.
func (s *ProductService) GetAllProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return product, nil
}

// CreateProduct validates input and stores a new product. When both an upload
// and an image URL are given, the upload wins.
func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput, upload *Upload) (*models.Product, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	artistName := strings.TrimSpace(in.ArtistName)
	rawPrice := strings.TrimSpace(in.Price)
	if title == "" || rawPrice == "" || description == "" || artistName == "" {
		return nil, invalid("Title, price, description, and artist name are required")
	}

	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return nil, invalid("Price must be a valid number")
	}
	// Stored prices have two decimals; a sub-cent price would round to zero.
	price = price.Round(2)
	if !price.IsPositive() {
		return nil, invalid("Price must be greater than zero")
	}

	imageURL := strings.TrimSpace(in.ImageURL)
	if upload == nil && imageURL == "" {
		return nil, invalid("Provide an image file or image URL")
	}

	image := imageURL
	uploaded := false
	if upload != nil {
		image, err = s.saveImage(ctx, upload)
		if err != nil {
			return nil, err
		}
		uploaded = true
	}

	now := s.clock.Now().UTC()
	product := &models.Product{
		ID:          generateID("p", now),
		Title:       title,
		Price:       price,
		Description: description,
		Image:       image,
		ArtistName:  artistName,
		CreatedAt:   now,
	}

	if err := s.repo.Create(ctx, product); err != nil {
		if uploaded {
			s.removeImage(ctx, image)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("product created", zap.String("product_id", product.ID))
	return product, nil
}

// UploadImage stores a standalone image and returns its public path.
func (s *ProductService) UploadImage(ctx context.Context, upload *Upload) (string, error) {
	if upload == nil {
		return "", invalid("Image file is required")
	}
	return s.saveImage(ctx, upload)
}

// DeleteProduct removes a product. Its uploaded image is removed best-effort.
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to get product %s: %w", id, err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}

	s.removeImage(ctx, product.Image)
	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}

// ListTables returns the store's table names for the admin DB viewer.
func (s *ProductService) ListTables(ctx context.Context) ([]string, error) {
	tables, err := s.tables.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (s *ProductService) saveImage(ctx context.Context, upload *Upload) (string, error) {
	// The extension is checked on the name that will actually be stored.
	clean := storage.SanitizeFilename(upload.Filename)
	ext := strings.ToLower(filepath.Ext(clean))
	if !allowedImageExts[ext] {
		return "", invalid("Unsupported image file type")
	}

	name := storage.UniqueFilename(clean, s.clock.Now())
	path, err := s.store.Save(ctx, name, upload.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return path, nil
}

func (s *ProductService) removeImage(ctx context.Context, image string) {
	if image == "" || !s.store.Owns(image) {
		return
	}
	if err := s.store.Delete(ctx, image); err != nil {
		s.logger.Warn("failed to delete product image", zap.String("image", image), zap.Error(err))
	}
}

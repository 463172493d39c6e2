package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"marketplace/internal/database"
	"marketplace/internal/repositories"
	"marketplace/internal/services"
	"marketplace/internal/storage"
)

// marketplace migrate: create or update the schema.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, log, db, err := loadBase()
		if err != nil {
			return err
		}
		defer func() {
			_ = database.Close(db)
			_ = log.Sync()
		}()

		tables, err := repositories.NewGORMSchemaRepository(db).Tables(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("schema up to date", zap.Strings("tables", tables))
		return nil
	},
}

// marketplace seed: add sample products to an empty catalog.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Add sample products when the catalog is empty",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, db, err := loadBase()
		if err != nil {
			return err
		}
		defer func() {
			_ = database.Close(db)
			_ = log.Sync()
		}()

		store, err := storage.New(cmd.Context(), cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialise image storage: %w", err)
		}

		productService := services.NewProductService(
			repositories.NewGORMProductRepository(db),
			repositories.NewGORMSchemaRepository(db),
			store,
			clockwork.NewRealClock(),
			log,
		)
		return seedProducts(cmd.Context(), productService, log)
	},
}

var sampleProducts = []services.CreateProductInput{
	{Title: "Maasai Market Sunset", Price: "45.00", Description: "Acrylic on canvas, 40x50cm", ArtistName: "Wanjiru K.", ImageURL: "https://picsum.photos/seed/sunset/600/400"},
	{Title: "Kitenge Pattern Study", Price: "30.00", Description: "Giclee print on cotton rag", ArtistName: "Otieno M.", ImageURL: "https://picsum.photos/seed/kitenge/600/400"},
	{Title: "Soapstone Elephant", Price: "25.50", Description: "Hand carved Kisii soapstone", ArtistName: "Nyaboke A.", ImageURL: "https://picsum.photos/seed/soapstone/600/400"},
}

// seedProducts populates the catalog with sample data unless it already has products.
func seedProducts(ctx context.Context, productService *services.ProductService, log *zap.Logger) error {
	existing, err := productService.GetAllProducts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Info("catalog not empty, skipping seed", zap.Int("products", len(existing)))
		return nil
	}

	for _, in := range sampleProducts {
		product, err := productService.CreateProduct(ctx, in, nil)
		if err != nil {
			return fmt.Errorf("failed to seed product %q: %w", in.Title, err)
		}
		log.Info("seeded product", zap.String("id", product.ID), zap.String("title", product.Title))
	}
	return nil
}

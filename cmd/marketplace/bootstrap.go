package main

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/logger"
	"marketplace/internal/repositories"
	"marketplace/internal/scheduler"
	"marketplace/internal/server"
	"marketplace/internal/services"
	"marketplace/internal/storage"
	"marketplace/pkg/rabbitmq"
)

// application holds every long-lived resource of a running process.
type application struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *gorm.DB
	scheduler *scheduler.Scheduler
	mqClient  *rabbitmq.Client // nil when RABBITMQ_URL is empty
	app       *fiber.App
}

// loadBase reads configuration, builds the logger and opens the migrated store.
func loadBase() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		_ = log.Sync()
		return nil, nil, nil, err
	}

	return cfg, log, db, nil
}

func newApplication(ctx context.Context) (*application, error) {
	cfg, log, db, err := loadBase()
	if err != nil {
		return nil, err
	}

	a := &application{cfg: cfg, logger: log, db: db}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialise image storage: %w", err)
	}

	// The publisher stays a nil interface when events are disabled.
	var publisher services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		a.mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL}, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialise RabbitMQ client: %w", err)
		}
		publisher = a.mqClient
	}

	clock := clockwork.NewRealClock()
	a.scheduler = scheduler.New(clock, log.Named("scheduler"))

	userRepo := repositories.NewGORMUserRepository(db)
	productRepo := repositories.NewGORMProductRepository(db)
	orderRepo := repositories.NewGORMOrderRepository(db)
	schemaRepo := repositories.NewGORMSchemaRepository(db)

	tokens := services.NewTokenService(cfg.Token.Secret, cfg.Token.TTL, clock)
	authService := services.NewAuthService(userRepo, tokens, clock, log)
	productService := services.NewProductService(productRepo, schemaRepo, store, clock, log)
	orderService := services.NewOrderService(orderRepo, productRepo, a.scheduler, publisher, cfg.MpesaConfirmDelay, clock, log)

	uploadDir := ""
	if local, ok := store.(*storage.LocalStore); ok {
		uploadDir = local.Root()
	}

	a.app = server.New(server.Deps{
		Auth:      authService,
		Products:  productService,
		Orders:    orderService,
		Logger:    log,
		AdminKey:  cfg.AdminKey,
		UploadDir: uploadDir,
		StaticDir: cfg.StaticDir,
		AccessLog: true,
	})

	return a, nil
}

// close releases resources in reverse order of acquisition. Pending deferred
// completions are cancelled; their orders stay pending.
func (a *application) close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.mqClient != nil {
		if err := a.mqClient.Close(); err != nil {
			a.logger.Warn("error closing RabbitMQ client", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("error closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

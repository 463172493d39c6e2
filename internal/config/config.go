// Package config loads the marketplace configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	Database DatabaseConfig
	Token    TokenConfig
	Storage  StorageConfig
	RabbitMQ RabbitMQConfig

	AdminKey          string
	StaticDir         string
	MpesaConfirmDelay time.Duration
}

// DatabaseConfig selects the gorm driver and its DSN.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// TokenConfig holds the session token signing settings.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

// StorageConfig selects where uploaded product images are kept.
type StorageConfig struct {
	Driver    string
	UploadDir string
	S3        S3Config
}

// S3Config holds S3-compatible bucket settings.
type S3Config struct {
	Bucket   string
	Region   string
	Key      string
	Secret   string
	Endpoint string
	URL      string
}

// RabbitMQConfig holds the order event broker URL. An empty URL disables events.
type RabbitMQConfig struct {
	URL string
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "database.db")
	v.SetDefault("TOKEN_SECRET", "dev_secret_change_me")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("ADMIN_KEY", "dev_admin_key_change_me")
	v.SetDefault("MPESA_CONFIRM_DELAY", "5s")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("STATIC_DIR", "frontend/public")
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_KEY", "")
	v.SetDefault("S3_SECRET", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_URL", "")
	v.SetDefault("RABBITMQ_URL", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort:   v.GetString("APP_PORT"),
		AppEnv:    v.GetString("APP_ENV"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		AdminKey:  v.GetString("ADMIN_KEY"),
		StaticDir: v.GetString("STATIC_DIR"),
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:    v.GetString("DATABASE_DSN"),
		},
		Token: TokenConfig{
			Secret: v.GetString("TOKEN_SECRET"),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(v.GetString("STORAGE_DRIVER")),
			UploadDir: v.GetString("UPLOAD_DIR"),
			S3: S3Config{
				Bucket:   v.GetString("S3_BUCKET"),
				Region:   v.GetString("S3_REGION"),
				Key:      v.GetString("S3_KEY"),
				Secret:   v.GetString("S3_SECRET"),
				Endpoint: v.GetString("S3_ENDPOINT"),
				URL:      v.GetString("S3_URL"),
			},
		},
		RabbitMQ: RabbitMQConfig{URL: v.GetString("RABBITMQ_URL")},
	}

	if !strings.HasPrefix(cfg.AppPort, ":") && !strings.Contains(cfg.AppPort, ":") {
		cfg.AppPort = ":" + cfg.AppPort
	}

	ttl, err := time.ParseDuration(v.GetString("TOKEN_TTL"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}
	cfg.Token.TTL = ttl

	delay, err := time.ParseDuration(v.GetString("MPESA_CONFIRM_DELAY"))
	if err != nil {
		return nil, fmt.Errorf("invalid MPESA_CONFIRM_DELAY: %w", err)
	}
	if delay < 0 {
		return nil, fmt.Errorf("MPESA_CONFIRM_DELAY must not be negative")
	}
	cfg.MpesaConfirmDelay = delay

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	switch cfg.Storage.Driver {
	case "local":
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	if cfg.Token.Secret == "" {
		return nil, fmt.Errorf("TOKEN_SECRET is required")
	}
	if cfg.AdminKey == "" {
		return nil, fmt.Errorf("ADMIN_KEY is required")
	}

	return cfg, nil
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

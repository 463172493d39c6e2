// Package storage keeps uploaded product images on a local disk or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketplace/internal/config"
)

// Store is the image storage driver interface.
type Store interface {
	// Save writes r under name and returns the public path or URL of the stored image.
	Save(ctx context.Context, name string, r io.Reader) (string, error)

	// Delete removes the image referenced by publicPath. Missing files are not an error.
	Delete(ctx context.Context, publicPath string) error

	// Owns reports whether publicPath refers to an image managed by this store.
	Owns(publicPath string) bool
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.UploadDir, "/uploads")
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename strips directories and unsafe characters from a client supplied name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	return name
}

// UniqueFilename prefixes a sanitized name with a millisecond timestamp and a
// random suffix so concurrent uploads of the same file never collide.
func UniqueFilename(original string, now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d_%s_%s", now.UnixMilli(), suffix, SanitizeFilename(original))
}

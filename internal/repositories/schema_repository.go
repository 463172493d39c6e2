package repositories

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// GORMSchemaRepository exposes read-only schema information for the admin DB viewer.
type GORMSchemaRepository struct {
	db *gorm.DB
}

// NewGORMSchemaRepository creates a new instance of GORMSchemaRepository.
func NewGORMSchemaRepository(db *gorm.DB) *GORMSchemaRepository {
	return &GORMSchemaRepository{db: db}
}

// Tables lists table names in ascending order.
func (r *GORMSchemaRepository) Tables(ctx context.Context) ([]string, error) {
	tables, err := r.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	sort.Strings(tables)
	return tables, nil
}

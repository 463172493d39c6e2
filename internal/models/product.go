package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents an artwork listed in the catalog.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Title       string          `json:"title" gorm:"type:varchar(255);not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Image       string          `json:"image" gorm:"type:varchar(1024);not null"`
	ArtistName  string          `json:"artistName" gorm:"type:varchar(255);not null"`
	CreatedAt   time.Time       `json:"createdAt" gorm:"index"`
}

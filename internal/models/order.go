package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the payment state of an order. Orders only move pending -> completed.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

// OrderItem is a snapshot of a product line at the time the order was placed.
// It deliberately has no foreign key to products so later catalog changes never alter it.
type OrderItem struct {
	ID        uint            `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderID   string          `json:"-" gorm:"type:varchar(64);index;not null"`
	ProductID string          `json:"productId" gorm:"type:varchar(64);not null"`
	Title     string          `json:"title" gorm:"type:varchar(255);not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"` // Price at the time of order
	Quantity  int             `json:"quantity" gorm:"not null"`
}

// Order represents a buyer's purchase.
type Order struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	BuyerID    string          `json:"buyerId" gorm:"type:varchar(64);index;not null"`
	Items      []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	TotalPrice decimal.Decimal `json:"totalPrice" gorm:"type:decimal(12,2);not null"`
	Status     OrderStatus     `json:"status" gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time       `json:"createdAt" gorm:"index"`
}

package model

import (
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
	"github.com/shopspring/decimal"
)

// Order is the durable record of one order; the single source of truth for its
// lifecycle state. Version increments by exactly one per committed transition
// and is the compare-and-swap guard against concurrent writers.
type Order struct {
	ID           uint64          `gorm:"primaryKey" json:"id"`
	CustomerID   uint64          `gorm:"not null;index" json:"customer_id"`
	RestaurantID uint64          `gorm:"not null;index" json:"restaurant_id"`
	State        lifecycle.State `gorm:"size:32;not null" json:"state"`
	Total        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total"`
	Version      uint64          `gorm:"not null;default:1" json:"version"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem holds one product's stock split into units free to reserve
// and units held by carts or unpaid orders. Both columns stay non-negative.
type InventoryItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0;check:inventory_items_available_check,available_qty >= 0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0;check:inventory_items_reserved_check,reserved_qty >= 0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// OnHand is the physical stock: free plus held units.
func (i InventoryItem) OnHand() int {
	return i.AvailableQty + i.ReservedQty
}

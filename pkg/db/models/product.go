package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a catalog listing. Prices are whole currency units.
type Product struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name           string         `gorm:"column:name;not null"`
	Description    *string        `gorm:"column:description"`
	SellingPrice   int64          `gorm:"column:selling_price;not null"`
	SalePercentage *float64       `gorm:"column:sale_percentage;type:numeric(5,2)"`
	IsActive       bool           `gorm:"column:is_active;not null;default:true"`
	RatingAverage  float64        `gorm:"column:rating_average;type:numeric(3,2);not null;default:0"`
	RatingCount    int            `gorm:"column:rating_count;not null;default:0"`
	Inventory      *InventoryItem `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermashop/dermashop-backend/pkg/enums"
)

// Shipment links an order to a courier consignment.
type Shipment struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Courier        string               `gorm:"column:courier;not null"`
	TrackingNumber string               `gorm:"column:tracking_number;not null;uniqueIndex"`
	Status         enums.ShipmentStatus `gorm:"column:status;type:text;not null"`
	ShippedAt      time.Time            `gorm:"column:shipped_at;not null"`
	DeliveredAt    *time.Time           `gorm:"column:delivered_at"`
	Events         []ShipmentEvent      `gorm:"foreignKey:ShipmentID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shipment) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// ShipmentEvent is one courier tracking update.
type ShipmentEvent struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ShipmentID  uuid.UUID            `gorm:"column:shipment_id;type:uuid;not null;index"`
	Status      enums.ShipmentStatus `gorm:"column:status;type:text;not null"`
	Description string               `gorm:"column:description;not null;default:''"`
	OccurredAt  time.Time            `gorm:"column:occurred_at;not null"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (e *ShipmentEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

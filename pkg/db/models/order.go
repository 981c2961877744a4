package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermashop/dermashop-backend/pkg/enums"
)

// Order is a customer purchase created at checkout.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null"`
	TotalItems      int               `gorm:"column:total_items;not null"`
	TotalAmount     int64             `gorm:"column:total_amount;not null"`
	RecipientName   string            `gorm:"column:recipient_name;not null"`
	Phone           string            `gorm:"column:phone;not null"`
	ShippingAddress string            `gorm:"column:shipping_address;not null"`
	Note            *string           `gorm:"column:note"`
	PaidAt          *time.Time        `gorm:"column:paid_at"`
	ShippedAt       *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time        `gorm:"column:delivered_at"`
	CancelledAt     *time.Time        `gorm:"column:cancelled_at"`
	ExpiredAt       *time.Time        `gorm:"column:expired_at"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem snapshots a cart line at checkout.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	ProductName    string    `gorm:"column:product_name;not null"`
	Price          int64     `gorm:"column:price;not null"`
	OriginalPrice  int64     `gorm:"column:original_price;not null"`
	SalePercentage *float64  `gorm:"column:sale_percentage;type:numeric(5,2)"`
	Quantity       int       `gorm:"column:quantity;not null"`
	LineTotal      int64     `gorm:"column:line_total;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermashop/dermashop-backend/pkg/enums"
)

// PaymentMethodBankTransfer is the only settlement channel today.
const PaymentMethodBankTransfer = "bank_transfer"

// Payment is the bank-transfer instruction issued for an order.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Method            string              `gorm:"column:method;not null"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	Amount            int64               `gorm:"column:amount;not null"`
	ReferenceCode     string              `gorm:"column:reference_code;not null;uniqueIndex"`
	BankTransactionID *string             `gorm:"column:bank_transaction_id"`
	ExpiresAt         time.Time           `gorm:"column:expires_at;not null;index"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

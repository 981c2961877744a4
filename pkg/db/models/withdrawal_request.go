package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dermashop/dermashop-backend/pkg/enums"
)

// WithdrawalRequest is a user's payout request awaiting admin review.
type WithdrawalRequest struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Amount        int64                  `gorm:"column:amount;not null"`
	BankName      string                 `gorm:"column:bank_name;not null"`
	AccountNumber string                 `gorm:"column:account_number;not null"`
	AccountHolder string                 `gorm:"column:account_holder;not null"`
	Status        enums.WithdrawalStatus `gorm:"column:status;type:text;not null"`
	AdminNote     *string                `gorm:"column:admin_note"`
	ProcessedBy   *uuid.UUID             `gorm:"column:processed_by;type:uuid"`
	ProcessedAt   *time.Time             `gorm:"column:processed_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *WithdrawalRequest) BeforeCreate(*gorm.DB) error {
	assignID(&w.ID)
	return nil
}

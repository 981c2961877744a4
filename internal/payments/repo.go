package payments

import (
	"context"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes payment persistence used by reconciliation and expiry.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	MarkPaid(ctx context.Context, paymentID uuid.UUID, bankTransactionID *string, paidAt time.Time) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("reference_code = ?", reference).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaid flips a pending payment to paid. It reports false when the payment
// had already left pending, which makes the flip happen at most once.
func (r *repository) MarkPaid(ctx context.Context, paymentID uuid.UUID, bankTransactionID *string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"status":              enums.PaymentStatusPaid,
			"paid_at":             paidAt,
			"bank_transaction_id": bankTransactionID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListOverdue returns pending payments whose transfer window closed before now.
func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.PaymentStatusPending, now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

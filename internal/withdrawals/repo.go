package withdrawals

import (
	"context"
	"errors"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.WithdrawalRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	FindPendingByUser(ctx context.Context, userID uuid.UUID) (*models.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error)
	Transition(ctx context.Context, id uuid.UUID, to enums.WithdrawalStatus, update Decision) (bool, error)
}

// Decision carries the audit fields written when a request leaves pending.
type Decision struct {
	AdminNote   *string
	ProcessedBy *uuid.UUID
	ProcessedAt time.Time
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// FindPendingByUser returns nil, nil when the user has no open request.
func (r *repository) FindPendingByUser(ctx context.Context, userID uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.WithdrawalStatusPending).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	var rows []models.WithdrawalRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

// Transition moves a pending request to its final status. It reports false
// when the request already left pending.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, to enums.WithdrawalStatus, update Decision) (bool, error) {
	updates := map[string]any{
		"status":       to,
		"processed_at": update.ProcessedAt,
		"updated_at":   update.ProcessedAt,
	}
	if update.AdminNote != nil {
		updates["admin_note"] = *update.AdminNote
	}
	if update.ProcessedBy != nil {
		updates["processed_by"] = *update.ProcessedBy
	}
	res := r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, enums.WithdrawalStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

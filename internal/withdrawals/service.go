package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/internal/notifications"
	"github.com/dermashop/dermashop-backend/pkg/db"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const onePendingIndex = "withdrawal_requests_one_pending_idx"

type CreateInput struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	BankName      string `json:"bank_name" validate:"required,max=100"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=5,max=30"`
	AccountHolder string `json:"account_holder" validate:"required,max=150"`
}

type ProcessInput struct {
	Decision enums.WithdrawalDecision `json:"decision" validate:"required"`
	Note     *string                  `json:"note,omitempty" validate:"omitempty,max=500"`
}

type WithdrawalDTO struct {
	ID            uuid.UUID              `json:"id"`
	Amount        int64                  `json:"amount"`
	BankName      string                 `json:"bank_name"`
	AccountNumber string                 `json:"account_number"`
	AccountHolder string                 `json:"account_holder"`
	Status        enums.WithdrawalStatus `json:"status"`
	AdminNote     *string                `json:"admin_note,omitempty"`
	ProcessedAt   *time.Time             `json:"processed_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*WithdrawalDTO, error)
	Cancel(ctx context.Context, userID, id uuid.UUID) (*WithdrawalDTO, error)
	Process(ctx context.Context, adminID, id uuid.UUID, input ProcessInput) (*WithdrawalDTO, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]WithdrawalDTO, error)
}

type Notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo          Repository
	Tx            txRunner
	Notifier      Notifier
	Logger        *logger.Logger
	MinimumAmount int64
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier Notifier
	logg     *logger.Logger
	minimum  int64
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("withdrawals repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.MinimumAmount < 0 {
		return nil, fmt.Errorf("minimum amount must not be negative")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		notifier: params.Notifier,
		logg:     params.Logger,
		minimum:  params.MinimumAmount,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*WithdrawalDTO, error) {
	input.BankName = strings.TrimSpace(input.BankName)
	input.AccountNumber = strings.TrimSpace(input.AccountNumber)
	input.AccountHolder = strings.TrimSpace(input.AccountHolder)
	if input.BankName == "" || input.AccountNumber == "" || input.AccountHolder == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank name, account number and account holder are required")
	}
	if input.Amount < s.minimum || input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount below minimum withdrawal").
			WithDetails(map[string]any{"minimum": s.minimum, "amount": input.Amount})
	}

	request := &models.WithdrawalRequest{
		UserID:        userID,
		Amount:        input.Amount,
		BankName:      input.BankName,
		AccountNumber: input.AccountNumber,
		AccountHolder: input.AccountHolder,
		Status:        enums.WithdrawalStatusPending,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		pending, err := repo.FindPendingByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending withdrawal")
		}
		if pending != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "a withdrawal request is already pending").
				WithDetails(map[string]any{"withdrawal_id": pending.ID})
		}
		if err := repo.Create(ctx, request); err != nil {
			// A concurrent request can pass the check above; the partial index decides.
			if db.IsUniqueViolation(err, onePendingIndex) || db.IsUniqueViolation(err, "withdrawal_requests.user_id") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a withdrawal request is already pending")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDTO(request), nil
}

func (s *service) Cancel(ctx context.Context, userID, id uuid.UUID) (*WithdrawalDTO, error) {
	request, err := s.transition(ctx, id, enums.WithdrawalStatusCancelled, Decision{}, func(request *models.WithdrawalRequest) error {
		if request.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "withdrawal belongs to another user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDTO(request), nil
}

func (s *service) Process(ctx context.Context, adminID, id uuid.UUID, input ProcessInput) (*WithdrawalDTO, error) {
	var to enums.WithdrawalStatus
	switch input.Decision {
	case enums.WithdrawalDecisionApprove:
		to = enums.WithdrawalStatusApproved
	case enums.WithdrawalDecisionReject:
		to = enums.WithdrawalStatusRejected
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approve or reject")
	}
	var note *string
	if input.Note != nil {
		if trimmed := strings.TrimSpace(*input.Note); trimmed != "" {
			note = &trimmed
		}
	}

	request, err := s.transition(ctx, id, to, Decision{AdminNote: note, ProcessedBy: &adminID}, nil)
	if err != nil {
		return nil, err
	}
	s.notifyDecision(ctx, request)
	return toDTO(request), nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID) ([]WithdrawalDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	out := make([]WithdrawalDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i]))
	}
	return out, nil
}

// transition moves a pending request to its final status inside one transaction.
func (s *service) transition(ctx context.Context, id uuid.UUID, to enums.WithdrawalStatus, decision Decision, authorize func(*models.WithdrawalRequest) error) (*models.WithdrawalRequest, error) {
	decision.ProcessedAt = s.now().UTC()

	var result *models.WithdrawalRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		request, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
		}
		if authorize != nil {
			if err := authorize(request); err != nil {
				return err
			}
		}
		moved, err := repo.Transition(ctx, id, to, decision)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update withdrawal")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal is no longer pending").
				WithDetails(map[string]any{"status": request.Status})
		}
		request.Status = to
		request.AdminNote = decision.AdminNote
		request.ProcessedBy = decision.ProcessedBy
		request.ProcessedAt = &decision.ProcessedAt
		result = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) notifyDecision(ctx context.Context, request *models.WithdrawalRequest) {
	if s.notifier == nil {
		return
	}
	title := "Withdrawal approved"
	message := fmt.Sprintf("Your withdrawal of %d to %s has been approved.", request.Amount, request.BankName)
	if request.Status == enums.WithdrawalStatusRejected {
		title = "Withdrawal rejected"
		message = fmt.Sprintf("Your withdrawal of %d was rejected.", request.Amount)
		if request.AdminNote != nil {
			message += " Note: " + *request.AdminNote
		}
	}
	link := "/withdrawals"
	if err := s.notifier.Notify(ctx, notifications.NotifyInput{
		UserID:  request.UserID,
		Type:    enums.NotificationTypeWithdrawalUpdate,
		Title:   title,
		Message: message,
		Link:    &link,
	}); err != nil {
		s.logError(ctx, request.ID, "withdrawals.notify_failed", err)
	}
}

func (s *service) logError(ctx context.Context, id uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithField(ctx, "withdrawal_id", id.String()), msg, err)
}

func toDTO(request *models.WithdrawalRequest) *WithdrawalDTO {
	return &WithdrawalDTO{
		ID:            request.ID,
		Amount:        request.Amount,
		BankName:      request.BankName,
		AccountNumber: request.AccountNumber,
		AccountHolder: request.AccountHolder,
		Status:        request.Status,
		AdminNote:     request.AdminNote,
		ProcessedAt:   request.ProcessedAt,
		CreatedAt:     request.CreatedAt,
	}
}

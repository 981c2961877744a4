package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/internal/notifications"
	"github.com/dermashop/dermashop-backend/internal/orders"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ResultPaid             = "paid"
	ResultAlreadyProcessed = "already_processed"
)

// BankTransferEvent is the settlement notice posted by the bank integration.
type BankTransferEvent struct {
	EventID           string
	Reference         string
	Amount            int64
	PaidAt            time.Time
	BankTransactionID string
}

// ReconcileResult reports what a settlement notice changed.
type ReconcileResult struct {
	Status    string    `json:"status"`
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
}

// Service reconciles incoming transfers against issued payment instructions.
type Service interface {
	Reconcile(ctx context.Context, event BankTransferEvent) (*ReconcileResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// InventoryCommitter consumes reserved stock inside the caller's transaction.
type InventoryCommitter interface {
	CommitTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ServiceParams struct {
	Repo      Repository
	Orders    orders.Repository
	Tx        txRunner
	Inventory InventoryCommitter
	Notifier  orders.Notifier
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	orders    orders.Repository
	tx        txRunner
	inventory InventoryCommitter
	notifier  orders.Notifier
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory committer required")
	}
	return &service{
		repo:      params.Repo,
		orders:    params.Orders,
		tx:        params.Tx,
		inventory: params.Inventory,
		notifier:  params.Notifier,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Reconcile marks the referenced payment paid, moves the order to paid and
// consumes its reserved stock, all in one transaction. A notice for a payment
// that is already paid is reported as already_processed.
func (s *service) Reconcile(ctx context.Context, event BankTransferEvent) (*ReconcileResult, error) {
	reference := strings.ToUpper(strings.TrimSpace(event.Reference))
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	if event.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	paidAt := event.PaidAt.UTC()
	if event.PaidAt.IsZero() {
		paidAt = s.now().UTC()
	}
	var bankTxID *string
	if id := strings.TrimSpace(event.BankTransactionID); id != "" {
		bankTxID = &id
	}

	result := &ReconcileResult{}
	var notifyUser uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByReference(ctx, reference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment reference not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		result.PaymentID = payment.ID
		result.OrderID = payment.OrderID

		if payment.Status == enums.PaymentStatusPaid {
			result.Status = ResultAlreadyProcessed
			return nil
		}
		if payment.Status != enums.PaymentStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is no longer payable").
				WithDetails(map[string]any{"status": payment.Status})
		}
		if payment.Amount != event.Amount {
			return pkgerrors.New(pkgerrors.CodeValidation, "transfer amount does not match payment").
				WithDetails(map[string]any{"expected": payment.Amount, "received": event.Amount})
		}

		flipped, err := repo.MarkPaid(ctx, payment.ID, bankTxID, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment paid")
		}
		if !flipped {
			result.Status = ResultAlreadyProcessed
			return nil
		}

		ordersRepo := s.orders.WithTx(tx)
		moved, err := ordersRepo.TransitionStatus(ctx, payment.OrderID, enums.OrderStatusPendingPayment, enums.OrderStatusPaid, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment")
		}
		order, err := ordersRepo.FindOrder(ctx, payment.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
		}
		for _, item := range order.Items {
			if err := s.inventory.CommitTx(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Passthrough(err, pkgerrors.CodeDependency, "commit inventory")
			}
		}
		result.Status = ResultPaid
		notifyUser = payment.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status == ResultPaid {
		s.notify(ctx, notifyUser, result.OrderID)
	}
	return result, nil
}

func (s *service) notify(ctx context.Context, userID, orderID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	link := "/orders/" + orderID.String()
	err := s.notifier.Notify(ctx, notifications.NotifyInput{
		UserID:  userID,
		Type:    enums.NotificationTypePaymentConfirmed,
		Title:   "Payment received",
		Message: "Your transfer was confirmed. We are preparing your order.",
		Link:    &link,
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "order_id", orderID.String()), "payments.notify_failed", err)
	}
}

package shipments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/internal/notifications"
	"github.com/dermashop/dermashop-backend/internal/orders"
	"github.com/dermashop/dermashop-backend/pkg/db"
	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateInput is the admin request to hand an order to a courier.
type CreateInput struct {
	OrderID        uuid.UUID
	Courier        string
	TrackingNumber string
}

// CourierEvent is one tracking update posted by the courier integration.
type CourierEvent struct {
	EventID        string
	TrackingNumber string
	Status         enums.ShipmentStatus
	Description    string
	OccurredAt     time.Time
}

// EventDTO is one tracking step.
type EventDTO struct {
	Status      enums.ShipmentStatus `json:"status"`
	Description string               `json:"description"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// TrackingDTO is a shipment with its full event history.
type TrackingDTO struct {
	OrderID        uuid.UUID            `json:"order_id"`
	Courier        string               `json:"courier"`
	TrackingNumber string               `json:"tracking_number"`
	Status         enums.ShipmentStatus `json:"status"`
	ShippedAt      time.Time            `json:"shipped_at"`
	DeliveredAt    *time.Time           `json:"delivered_at,omitempty"`
	Events         []EventDTO           `json:"events"`
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*TrackingDTO, error)
	HandleCourierEvent(ctx context.Context, event CourierEvent) error
	Tracking(ctx context.Context, userID, orderID uuid.UUID) (*TrackingDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo     Repository
	Orders   orders.Repository
	Tx       txRunner
	Notifier orders.Notifier
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	orders   orders.Repository
	tx       txRunner
	notifier orders.Notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		tx:       params.Tx,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

// Create records the consignment for a paid order and moves the order to shipped.
func (s *service) Create(ctx context.Context, input CreateInput) (*TrackingDTO, error) {
	courier := strings.TrimSpace(input.Courier)
	tracking := strings.TrimSpace(input.TrackingNumber)
	if input.OrderID == uuid.Nil || courier == "" || tracking == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id, courier and tracking number are required")
	}

	now := s.now().UTC()
	shipment := &models.Shipment{
		OrderID:        input.OrderID,
		Courier:        courier,
		TrackingNumber: tracking,
		Status:         enums.ShipmentStatusInTransit,
		ShippedAt:      now,
		Events: []models.ShipmentEvent{{
			Status:      enums.ShipmentStatusInTransit,
			Description: fmt.Sprintf("Handed over to %s", courier),
			OccurredAt:  now,
		}},
	}

	var userID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		order, err := ordersRepo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		moved, err := ordersRepo.TransitionStatus(ctx, order.ID, enums.OrderStatusPaid, enums.OrderStatusShipped, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order shipped")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be shipped").
				WithDetails(map[string]any{"status": order.Status})
		}
		if err := s.repo.WithTx(tx).Create(ctx, shipment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "shipment or tracking number already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
		}
		userID = order.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, userID, input.OrderID, "Order shipped", fmt.Sprintf("Your order is on its way with %s, tracking number %s.", courier, tracking))
	return toTrackingDTO(shipment), nil
}

// HandleCourierEvent appends the update to the shipment history. A delivered
// update moves the order from shipped to delivered exactly once.
func (s *service) HandleCourierEvent(ctx context.Context, event CourierEvent) error {
	tracking := strings.TrimSpace(event.TrackingNumber)
	if tracking == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}
	if !event.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown shipment status").
			WithDetails(map[string]any{"status": event.Status})
	}
	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	var (
		delivered bool
		userID    uuid.UUID
		orderID   uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		shipment, err := repo.FindByTrackingNumber(ctx, tracking)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
		}
		orderID = shipment.OrderID

		if err := repo.AppendEvent(ctx, &models.ShipmentEvent{
			ShipmentID:  shipment.ID,
			Status:      event.Status,
			Description: strings.TrimSpace(event.Description),
			OccurredAt:  occurredAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append shipment event")
		}

		var deliveredAt *time.Time
		if event.Status == enums.ShipmentStatusDelivered {
			deliveredAt = &occurredAt
		}
		if shipment.Status != enums.ShipmentStatusDelivered {
			if err := repo.UpdateStatus(ctx, shipment.ID, event.Status, deliveredAt); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shipment status")
			}
		}
		if deliveredAt == nil {
			return nil
		}

		ordersRepo := s.orders.WithTx(tx)
		moved, err := ordersRepo.TransitionStatus(ctx, shipment.OrderID, enums.OrderStatusShipped, enums.OrderStatusDelivered, occurredAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order delivered")
		}
		if moved {
			order, err := ordersRepo.FindOrder(ctx, shipment.OrderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
			}
			delivered = true
			userID = order.UserID
		}
		return nil
	})
	if err != nil {
		return err
	}

	if delivered {
		s.notify(ctx, userID, orderID, "Order delivered", "Your order has arrived. Let us know what you think by leaving a review.")
	}
	return nil
}

// Tracking returns the shipment history of one of the user's orders.
func (s *service) Tracking(ctx context.Context, userID, orderID uuid.UUID) (*TrackingDTO, error) {
	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	shipment, err := s.orders.FindShipmentByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	if shipment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has not shipped yet")
	}
	return toTrackingDTO(shipment), nil
}

func (s *service) notify(ctx context.Context, userID, orderID uuid.UUID, title, message string) {
	if s.notifier == nil {
		return
	}
	link := "/orders/" + orderID.String() + "/tracking"
	err := s.notifier.Notify(ctx, notifications.NotifyInput{
		UserID:  userID,
		Type:    enums.NotificationTypeShipmentUpdate,
		Title:   title,
		Message: message,
		Link:    &link,
	})
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "order_id", orderID.String()), "shipments.notify_failed", err)
	}
}

func toTrackingDTO(shipment *models.Shipment) *TrackingDTO {
	dto := &TrackingDTO{
		OrderID:        shipment.OrderID,
		Courier:        shipment.Courier,
		TrackingNumber: shipment.TrackingNumber,
		Status:         shipment.Status,
		ShippedAt:      shipment.ShippedAt,
		DeliveredAt:    shipment.DeliveredAt,
		Events:         make([]EventDTO, 0, len(shipment.Events)),
	}
	for _, event := range shipment.Events {
		dto.Events = append(dto.Events, EventDTO{
			Status:      event.Status,
			Description: event.Description,
			OccurredAt:  event.OccurredAt,
		})
	}
	return dto
}

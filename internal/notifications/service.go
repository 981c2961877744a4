package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/enums"
	pkgerrors "github.com/dermashop/dermashop-backend/pkg/errors"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/dermashop/dermashop-backend/pkg/pagination"
	"github.com/google/uuid"
)

// Service defines notification delivery plus list/read operations.
type Service interface {
	Notify(ctx context.Context, input NotifyInput) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Pusher sends a payload to every live connection of a user.
type Pusher interface {
	Send(userID uuid.UUID, payload any) (int, error)
}

// EventPublisher fans notifications out to other consumers.
type EventPublisher interface {
	PublishNotification(ctx context.Context, notification *models.Notification) error
}

// NotifyInput describes one notification for one user.
type NotifyInput struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	Link    *string
}

// ServiceParams wires the notification service. Pusher, Publisher and Logger
// are optional.
type ServiceParams struct {
	Repo      Repository
	Pusher    Pusher
	Publisher EventPublisher
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	pusher    Pusher
	publisher EventPublisher
	logg      *logger.Logger
	now       func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// Message is the frame pushed over the socket.
type Message struct {
	Event        string               `json:"event"`
	Notification *models.Notification `json:"notification"`
}

const eventNotificationCreated = "notification.created"

// NewService wires notifications dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{
		repo:      params.Repo,
		pusher:    params.Pusher,
		publisher: params.Publisher,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Notify persists the notification, then pushes and publishes it. Only the
// write can fail the call.
func (s *service) Notify(ctx context.Context, input NotifyInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown notification type %q", input.Type))
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}

	notification := &models.Notification{
		UserID:    input.UserID,
		Type:      input.Type,
		Title:     title,
		Message:   strings.TrimSpace(input.Message),
		Link:      input.Link,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"notification_id": notification.ID.String(),
			"user_id":         notification.UserID.String(),
		})
	}

	if s.pusher != nil {
		if _, err := s.pusher.Send(notification.UserID, Message{Event: eventNotificationCreated, Notification: notification}); err != nil && s.logg != nil {
			s.logg.Error(logCtx, "notifications.push_failed", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishNotification(ctx, notification); err != nil && s.logg != nil {
			s.logg.Error(logCtx, "notifications.publish_failed", err)
		}
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

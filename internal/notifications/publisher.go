package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
)

type topicPublisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	NotificationTopic() string
}

// PubSubPublisher emits every stored notification to the notifications topic.
type PubSubPublisher struct {
	client topicPublisher
}

// NewPubSubPublisher wraps the Pub/Sub client.
func NewPubSubPublisher(client topicPublisher) (*PubSubPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client required")
	}
	if client.NotificationTopic() == "" {
		return nil, fmt.Errorf("notification topic required")
	}
	return &PubSubPublisher{client: client}, nil
}

func (p *PubSubPublisher) PublishNotification(ctx context.Context, notification *models.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	attrs := map[string]string{
		"event_type": eventNotificationCreated,
		"user_id":    notification.UserID.String(),
		"type":       notification.Type.String(),
	}
	_, err = p.client.Publish(ctx, p.client.NotificationTopic(), data, attrs)
	return err
}

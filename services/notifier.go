package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
	"gorm.io/gorm"

	"github.com/tuinawx/booking-api/models"
)

// Notification types emitted by the order workflow.
const (
	NotifyNewOrder         = "new_order"
	NotifyOrderConfirmed   = "order_confirmed"
	NotifyServiceStarted   = "service_started"
	NotifyServiceCompleted = "service_completed"
	NotifyOrderCancelled   = "order_cancelled"
	NotifyOrderPaid        = "order_paid"
	NotifyOrderRefunded    = "order_refunded"
	NotifyOrderCommented   = "order_commented"
)

// Notifier delivers a notification. Delivery is best effort: callers in the
// order workflow log and drop any error it returns.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// NewNotification builds an inbox record whose content is the JSON encoded payload.
func NewNotification(recipientID uint, recipientType models.Role, eventType string, payload map[string]any) (models.Notification, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["type"] = eventType

	content, err := json.Marshal(body)
	if err != nil {
		return models.Notification{}, fmt.Errorf("marshal notification payload: %w", err)
	}
	return models.Notification{
		RecipientID:   recipientID,
		RecipientType: recipientType,
		Type:          eventType,
		Content:       string(content),
	}, nil
}

// InboxNotifier stores notifications in the notifications table.
type InboxNotifier struct {
	db *gorm.DB
}

// NewInboxNotifier creates a notifier writing to db
func NewInboxNotifier(db *gorm.DB) *InboxNotifier {
	return &InboxNotifier{db: db}
}

// Notify implements Notifier.
func (n *InboxNotifier) Notify(ctx context.Context, notification models.Notification) error {
	if err := n.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// PubSubNotifier publishes notifications to a Pub/Sub topic for push delivery.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotifier constructs a Pub/Sub backed notifier.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	return &PubSubNotifier{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Notify implements Notifier.
func (p *PubSubNotifier) Notify(ctx context.Context, notification models.Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}

	data, err := p.marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"recipientId":   strconv.FormatUint(uint64(notification.RecipientID), 10),
			"recipientType": string(notification.RecipientType),
			"type":          notification.Type,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// MultiNotifier delivers to every notifier and joins their errors.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, notification models.Notification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-grocer/internal/events"
)

const (
	// TypeOrderConfirmationEmail sends the order confirmation email.
	TypeOrderConfirmationEmail = "email:order_confirmation"

	// QueueNotifications carries customer-facing notifications.
	QueueNotifications = "notifications"
	// QueueDefault is the asynq default queue.
	QueueDefault = "default"
)

// OrderConfirmation is the payload of TypeOrderConfirmationEmail.
type OrderConfirmation struct {
	EventID int64               `json:"eventId"`
	Order   events.OrderCreated `json:"order"`
}

// NewOrderConfirmationTask builds the task for an order. The task id is derived
// from the order id so the same order is never queued twice.
func NewOrderConfirmationTask(p OrderConfirmation, maxRetry int) (*asynq.Task, error) {
	if p.Order.OrderID == "" {
		return nil, fmt.Errorf("queue: order id is required")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: encode order confirmation: %w", err)
	}
	if maxRetry <= 0 {
		maxRetry = 6
	}
	return asynq.NewTask(TypeOrderConfirmationEmail, payload,
		asynq.TaskID("order-confirmation:"+p.Order.OrderID),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	), nil
}

// DecodeOrderConfirmation parses a TypeOrderConfirmationEmail payload.
func DecodeOrderConfirmation(t *asynq.Task) (OrderConfirmation, error) {
	var p OrderConfirmation
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return OrderConfirmation{}, fmt.Errorf("queue: decode %s: %w", t.Type(), err)
	}
	return p, nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-grocer/internal/events"
	"github.com/noah-isme/backend-grocer/internal/queue"
)

type taskEnqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) error
}

// OrderEmailNotifier queues a confirmation email for every order.created event
// that carries a recipient.
type OrderEmailNotifier struct {
	Tasks    taskEnqueuer
	Enabled  bool
	MaxRetry int
}

// Notify implements events.Notifier.
func (n OrderEmailNotifier) Notify(ctx context.Context, ev events.Event) error {
	if !n.Enabled || n.Tasks == nil || ev.Topic != events.TopicOrderCreated {
		return nil
	}
	var payload events.OrderCreated
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("order email: decode payload: %w", err)
	}
	if strings.TrimSpace(payload.Email) == "" {
		return nil
	}
	task, err := queue.NewOrderConfirmationTask(queue.OrderConfirmation{EventID: ev.ID, Order: payload}, n.MaxRetry)
	if err != nil {
		return err
	}
	if err := n.Tasks.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("order email: enqueue: %w", err)
	}
	return nil
}

package queue

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes tasks through an asynq client.
type Enqueuer struct {
	Client taskClient
}

// Enqueue submits the task. A task whose id is already queued counts as success.
func (e Enqueuer) Enqueue(ctx context.Context, task *asynq.Task) error {
	if e.Client == nil {
		return errors.New("queue: client not configured")
	}
	_, err := e.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

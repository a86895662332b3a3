package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocer/internal/events"
	"github.com/noah-isme/backend-grocer/internal/queue"
)

type fakeClient struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestOrderConfirmationTaskRoundTrip(t *testing.T) {
	task, err := queue.NewOrderConfirmationTask(queue.OrderConfirmation{
		EventID: 7,
		Order:   events.OrderCreated{OrderID: "ord-1", Email: "ada@example.com", Total: 61.96},
	}, 0)
	require.NoError(t, err)
	require.Equal(t, queue.TypeOrderConfirmationEmail, task.Type())

	decoded, err := queue.DecodeOrderConfirmation(task)
	require.NoError(t, err)
	require.EqualValues(t, 7, decoded.EventID)
	require.Equal(t, "ada@example.com", decoded.Order.Email)
}

func TestOrderConfirmationTaskRequiresOrderID(t *testing.T) {
	_, err := queue.NewOrderConfirmationTask(queue.OrderConfirmation{}, 3)
	require.Error(t, err)
}

func TestDecodeOrderConfirmationRejectsGarbage(t *testing.T) {
	_, err := queue.DecodeOrderConfirmation(asynq.NewTask(queue.TypeOrderConfirmationEmail, []byte("{")))
	require.Error(t, err)
}

func TestEnqueuerTreatsConflictAsSuccess(t *testing.T) {
	task := asynq.NewTask(queue.TypeOrderConfirmationEmail, []byte(`{}`))

	client := &fakeClient{}
	require.NoError(t, queue.Enqueuer{Client: client}.Enqueue(context.Background(), task))
	require.Len(t, client.tasks, 1)

	client.err = asynq.ErrTaskIDConflict
	require.NoError(t, queue.Enqueuer{Client: client}.Enqueue(context.Background(), task))

	client.err = errors.New("redis down")
	require.Error(t, queue.Enqueuer{Client: client}.Enqueue(context.Background(), task))

	require.Error(t, queue.Enqueuer{}.Enqueue(context.Background(), task))
}

func TestObserveMiddlewarePassesThrough(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	h := queue.Observe(zerolog.Nop())(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		calls++
		if calls > 1 {
			return boom
		}
		return nil
	}))
	task := asynq.NewTask("noop", nil)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.ErrorIs(t, h.ProcessTask(context.Background(), task), boom)
}

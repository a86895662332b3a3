package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocer/internal/common"
	"github.com/noah-isme/backend-grocer/internal/events"
	"github.com/noah-isme/backend-grocer/internal/notify"
	"github.com/noah-isme/backend-grocer/internal/queue"
	"github.com/noah-isme/backend-grocer/internal/resilience"
)

type captureTasks struct {
	tasks []*asynq.Task
}

func (c *captureTasks) Enqueue(_ context.Context, task *asynq.Task) error {
	c.tasks = append(c.tasks, task)
	return nil
}

func orderEvent(t *testing.T, payload events.OrderCreated) events.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{ID: 42, Topic: events.TopicOrderCreated, AggregateID: payload.OrderID, Payload: raw}
}

func TestOrderConfirmationEmail(t *testing.T) {
	msg, err := notify.OrderConfirmationEmail("orders@grocer.local", events.OrderCreated{
		OrderID: "ord-1", Email: "ada@example.com", Total: 61.96, DeliveryMethod: "SHIP",
	})
	require.NoError(t, err)
	require.Equal(t, "Order confirmation – ord-1", msg.Subject)
	require.Equal(t, "ada@example.com", msg.To)
	require.Contains(t, msg.HTML, "£61.96")
	require.Contains(t, msg.HTML, "<strong>ord-1</strong>")
	require.NotContains(t, msg.HTML, "collection")
}

func TestOrderConfirmationEmailEscapesInput(t *testing.T) {
	msg, err := notify.OrderConfirmationEmail("", events.OrderCreated{OrderID: "<script>", DeliveryMethod: "PICKUP"})
	require.NoError(t, err)
	require.NotContains(t, msg.HTML, "<script>")
	require.Contains(t, msg.HTML, "collection")
}

func TestNotifierQueuesOrderEmail(t *testing.T) {
	tasks := &captureTasks{}
	n := notify.OrderEmailNotifier{Tasks: tasks, Enabled: true}

	require.NoError(t, n.Notify(context.Background(), orderEvent(t, events.OrderCreated{OrderID: "ord-1", Email: "ada@example.com"})))
	require.Len(t, tasks.tasks, 1)
	decoded, err := queue.DecodeOrderConfirmation(tasks.tasks[0])
	require.NoError(t, err)
	require.EqualValues(t, 42, decoded.EventID)

	require.NoError(t, n.Notify(context.Background(), orderEvent(t, events.OrderCreated{OrderID: "ord-2"})))
	require.Len(t, tasks.tasks, 1, "orders without an email are skipped")

	other := orderEvent(t, events.OrderCreated{OrderID: "ord-3", Email: "x@example.com"})
	other.Topic = events.TopicOrderStatusChanged
	require.NoError(t, n.Notify(context.Background(), other))
	require.Len(t, tasks.tasks, 1)
}

func TestNotifierDisabled(t *testing.T) {
	tasks := &captureTasks{}
	n := notify.OrderEmailNotifier{Tasks: tasks}
	require.NoError(t, n.Notify(context.Background(), orderEvent(t, events.OrderCreated{OrderID: "ord-1", Email: "a@example.com"})))
	require.Empty(t, tasks.tasks)
}

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, common.Email) error {
	f.calls++
	return errors.New("smtp down")
}

func newTask(t *testing.T, o events.OrderCreated) *asynq.Task {
	t.Helper()
	task, err := queue.NewOrderConfirmationTask(queue.OrderConfirmation{EventID: 1, Order: o}, 3)
	require.NoError(t, err)
	return task
}

func TestOrderEmailHandlerSendsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	outbox := &common.InMemoryEmail{}
	h := notify.OrderEmailHandler{
		Mail:   outbox,
		From:   "orders@grocer.local",
		Guard:  notify.RedisConfirmationGuard{Client: client},
		Logger: zerolog.Nop(),
	}
	task := newTask(t, events.OrderCreated{OrderID: "ord-1", Email: "ada@example.com", Total: 10})

	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.NoError(t, h.ProcessTask(context.Background(), task))
	sent := outbox.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "orders@grocer.local", sent[0].From)
}

func TestOrderEmailHandlerReleasesGuardOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sender := &failingSender{}
	h := notify.OrderEmailHandler{Mail: sender, Guard: notify.RedisConfirmationGuard{Client: client}, Logger: zerolog.Nop()}
	task := newTask(t, events.OrderCreated{OrderID: "ord-1", Email: "ada@example.com"})

	require.Error(t, h.ProcessTask(context.Background(), task))
	require.Error(t, h.ProcessTask(context.Background(), task))
	require.Equal(t, 2, sender.calls)
	require.False(t, mr.Exists(notify.ConfirmationKey("ord-1")))
}

func TestOrderEmailHandlerSkipsBadPayload(t *testing.T) {
	h := notify.OrderEmailHandler{Mail: &common.InMemoryEmail{}, Logger: zerolog.Nop()}
	err := h.ProcessTask(context.Background(), asynq.NewTask(queue.TypeOrderConfirmationEmail, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHTTPMailer(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := notify.NewHTTPMailer(srv.URL, "secret", time.Second)
	require.NoError(t, m.Send(context.Background(), common.Email{From: "a@x", To: "b@x", Subject: "Hi", HTML: "<p>hi</p>"}))
	require.Equal(t, "Bearer secret", auth)
	require.Equal(t, "b@x", got["to"])
	require.Equal(t, "Hi", got["subject"])
}

func TestHTTPMailerRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := notify.NewHTTPMailer(srv.URL, "", time.Second)
	require.Error(t, m.Send(context.Background(), common.Email{To: "b@x"}))
}

func TestHTTPMailerStopsCallingFailingRelay(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := notify.NewHTTPMailer(srv.URL, "", time.Second)
	m.Breaker = resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 2, OpenFor: time.Hour})

	require.Error(t, m.Send(context.Background(), common.Email{To: "b@x"}))
	require.Error(t, m.Send(context.Background(), common.Email{To: "b@x"}))
	err := m.Send(context.Background(), common.Email{To: "b@x"})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 2, calls)
}

func TestConfirmationGuardHoldsKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	guard := notify.RedisConfirmationGuard{Client: client, Hold: time.Hour}
	ok, err := guard.Claim(ctx, "ord-7")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Hour, mr.TTL(notify.ConfirmationKey("ord-7")))

	ok, err = guard.Claim(ctx, "ord-7")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, guard.Forget(ctx, "ord-7"))
	ok, err = guard.Claim(ctx, "ord-7")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = notify.RedisConfirmationGuard{}.Claim(ctx, "ord-7")
	require.NoError(t, err)
	require.True(t, ok)
}

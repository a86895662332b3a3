package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists events in the domain_events table.
type PGStore struct {
	DB rowQuerier
}

// Insert implements EventStore.
func (s PGStore) Insert(ctx context.Context, topic, aggregateID string, payload []byte) (Event, error) {
	aggregate, err := uuid.Parse(aggregateID)
	if err != nil {
		return Event{}, fmt.Errorf("invalid aggregate id %q: %w", aggregateID, err)
	}
	const q = `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id::text, payload, occurred_at
`
	var ev Event
	err = s.DB.QueryRow(ctx, q, topic, aggregate, payload).Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

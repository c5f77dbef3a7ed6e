package store

import (
	"context"
	"database/sql"
)

// EventStore is the ledger of processed webhook event ids. Together with the
// provider-timestamp guard on entitlement writes it makes event processing
// logically at-most-once.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// MarkProcessed records the event id. Returns false when the id was already
// recorded by an earlier delivery.
func (s *EventStore) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_webhook_events (event_id, event_type) VALUES (?, ?)`,
		eventID, eventType,
	)
	if err != nil {
		return false, unavailable("mark event processed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("mark event processed", err)
	}
	return n > 0, nil
}

// Forget removes the mark so the provider's retry of a failed delivery is not
// treated as a duplicate.
func (s *EventStore) Forget(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_webhook_events WHERE event_id = ?`, eventID)
	if err != nil {
		return unavailable("forget event", err)
	}
	return nil
}

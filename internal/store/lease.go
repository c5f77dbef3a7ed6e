package store

import (
	"context"
	"database/sql"
	"time"
)

// LeaseStore implements a per-user TTL lease in the database, so sync
// debouncing stays correct when the service runs as multiple instances.
type LeaseStore struct {
	db *sql.DB
}

func NewLeaseStore(db *sql.DB) *LeaseStore {
	return &LeaseStore{db: db}
}

// Acquire takes the lease for userID unless another holder's lease is still
// live. Returns false when the lease is held.
func (s *LeaseStore) Acquire(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_leases (user_id, expires_at) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET expires_at = excluded.expires_at
		WHERE sync_leases.expires_at < ?`,
		userID, now.Add(ttl), now,
	)
	if err != nil {
		return false, unavailable("acquire lease", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("acquire lease", err)
	}
	return n > 0, nil
}

func (s *LeaseStore) Release(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_leases WHERE user_id = ?`, userID)
	if err != nil {
		return unavailable("release lease", err)
	}
	return nil
}

// DeleteExpired removes stale leases; called by the background janitor.
func (s *LeaseStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_leases WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, unavailable("delete expired leases", err)
	}
	return res.RowsAffected()
}

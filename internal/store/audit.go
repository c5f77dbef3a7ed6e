package store

import (
	"context"
	"database/sql"

	"github.com/newslens-app/newslens/internal/model"
)

// AuditStore records submitted article audits for history and analytics.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Create(ctx context.Context, a *model.Audit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audits (id, user_id, source_url, title, bias_score, verdict)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.SourceURL, a.Title, a.BiasScore, a.Verdict,
	)
	if err != nil {
		return unavailable("insert audit", err)
	}
	return nil
}

func (s *AuditStore) ListRecent(ctx context.Context, userID string, limit int) ([]model.Audit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, source_url, title, bias_score, verdict, created_at
		FROM audits WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, unavailable("list audits", err)
	}
	defer rows.Close()

	var audits []model.Audit
	for rows.Next() {
		var a model.Audit
		var sourceURL, title, verdict sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &sourceURL, &title, &a.BiasScore, &verdict, &a.CreatedAt); err != nil {
			return nil, unavailable("scan audit", err)
		}
		a.SourceURL = sourceURL.String
		a.Title = title.String
		a.Verdict = verdict.String
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list audits", err)
	}
	return audits, nil
}

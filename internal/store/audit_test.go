package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/newslens-app/newslens/internal/model"
)

func TestAuditCreateAndList(t *testing.T) {
	db := setupTestDB(t)
	es := NewEntitlementStore(db)
	s := NewAuditStore(db)
	ctx := context.Background()

	if _, err := es.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	for i := 0; i < 3; i++ {
		err := s.Create(ctx, &model.Audit{
			ID:        fmt.Sprintf("audit-%d", i),
			UserID:    "u1",
			SourceURL: "https://example.com/story",
			Title:     fmt.Sprintf("Story %d", i),
			BiasScore: 0.4,
			Verdict:   "center",
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	audits, err := s.ListRecent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(audits) != 2 {
		t.Fatalf("len = %d, want 2", len(audits))
	}
	if audits[0].UserID != "u1" || audits[0].Verdict != "center" {
		t.Errorf("unexpected audit %+v", audits[0])
	}
}

func TestAuditListEmpty(t *testing.T) {
	db := setupTestDB(t)
	s := NewAuditStore(db)

	audits, err := s.ListRecent(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(audits) != 0 {
		t.Errorf("len = %d, want 0", len(audits))
	}
}

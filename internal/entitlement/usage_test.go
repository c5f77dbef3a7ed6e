package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/newslens-app/newslens/internal/model"
	"github.com/newslens-app/newslens/internal/store"
)

func newTestCounter(t *testing.T) (*Counter, *store.EntitlementStore) {
	t.Helper()
	r, es := newTestResolver(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCounter(es, r, logger), es
}

func TestCounterFreeTierCap(t *testing.T) {
	c, _ := newTestCounter(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := c.Increment(ctx, "u1", "")
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if !res.Allowed || res.AuditsUsed != i {
			t.Fatalf("increment %d: %+v", i, res)
		}
	}

	res, err := c.Increment(ctx, "u1", "")
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("err = %v, want ErrLimitExceeded", err)
	}
	if res == nil || res.Allowed || res.AuditsUsed != 5 {
		t.Errorf("refused result = %+v, want used=5 allowed=false", res)
	}
}

func TestCounterProIsNeverBlocked(t *testing.T) {
	c, es := newTestCounter(t)
	ctx := context.Background()
	periodEnd := time.Now().UTC().Add(720 * time.Hour)

	if _, err := es.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := es.ApplyProviderState(ctx, "u1", store.ProviderState{
		Plan:      model.PlanPro,
		Status:    model.StatusActive,
		PeriodEnd: &periodEnd,
		UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	for i := 1; i <= 20; i++ {
		res, err := c.Increment(ctx, "u1", "")
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("pro increment %d blocked", i)
		}
	}
}

func TestCounterBasicUsesPlanQuota(t *testing.T) {
	c, es := newTestCounter(t)
	ctx := context.Background()
	periodEnd := time.Now().UTC().Add(720 * time.Hour)

	if _, err := es.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := es.ApplyProviderState(ctx, "u1", store.ProviderState{
		Plan:      model.PlanBasic,
		Status:    model.StatusActive,
		PeriodEnd: &periodEnd,
		UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Basic is a paid plan, so the counter records but never refuses.
	res, err := c.Increment(ctx, "u1", "")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if !res.Allowed || res.AuditsLimit != Unlimited {
		t.Errorf("basic increment = %+v, want allowed and uncapped", res)
	}
}

func TestCounterReset(t *testing.T) {
	c, _ := newTestCounter(t)
	ctx := context.Background()

	if _, err := c.Increment(ctx, "u1", ""); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := c.Reset(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	res, err := c.Increment(ctx, "u1", "")
	if err != nil {
		t.Fatalf("increment after reset: %v", err)
	}
	if res.AuditsUsed != 1 {
		t.Errorf("audits_used = %d, want 1 after reset", res.AuditsUsed)
	}
}

package entitlement

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/newslens-app/newslens/internal/database"
	"github.com/newslens-app/newslens/internal/model"
	"github.com/newslens-app/newslens/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.EntitlementStore) {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	es := store.NewEntitlementStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(es, logger), es
}

func TestResolveNewUserIsFree(t *testing.T) {
	r, _ := newTestResolver(t)

	view, err := r.Resolve(context.Background(), "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if view.IsPro {
		t.Error("new user resolved as pro")
	}
	if view.Plan != model.PlanFree {
		t.Errorf("plan = %q, want free", view.Plan)
	}
	if view.AuditsLimit != 5 || view.AuditsRemaining != 5 {
		t.Errorf("limit/remaining = %d/%d, want 5/5", view.AuditsLimit, view.AuditsRemaining)
	}
}

func TestResolveActivePro(t *testing.T) {
	r, es := newTestResolver(t)
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

	view, err := r.Resolve(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !view.IsPro {
		t.Error("active pro resolved as not pro")
	}
	if view.AuditsLimit != Unlimited {
		t.Errorf("limit = %d, want unlimited", view.AuditsLimit)
	}
}

func TestResolveExpiredPeriodIsNotPro(t *testing.T) {
	r, es := newTestResolver(t)
	ctx := context.Background()
	expired := time.Now().UTC().Add(-time.Hour)

	if _, err := es.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Status still says active but the paid period has lapsed.
	if _, err := es.ApplyProviderState(ctx, "u1", store.ProviderState{
		Plan:      model.PlanPro,
		Status:    model.StatusActive,
		PeriodEnd: &expired,
		UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	view, err := r.Resolve(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if view.IsPro {
		t.Error("expired period resolved as pro")
	}
	if view.AuditsLimit != 5 {
		t.Errorf("limit = %d, want free-tier 5", view.AuditsLimit)
	}
}

func TestResolvePastDueIsNotPro(t *testing.T) {
	r, es := newTestResolver(t)
	ctx := context.Background()

	if _, err := es.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := es.ApplyProviderState(ctx, "u1", store.ProviderState{
		Plan:      model.PlanPro,
		Status:    model.StatusPastDue,
		UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	view, err := r.Resolve(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if view.IsPro {
		t.Error("past_due resolved as pro")
	}
}

func TestResolveOverride(t *testing.T) {
	r, es := newTestResolver(t)
	ctx := context.Background()

	if _, err := es.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := es.SetOverride(ctx, "u1", model.Override{
		Plan:   model.PlanTeam,
		Reason: "newsroom partner",
	}); err != nil {
		t.Fatalf("set override: %v", err)
	}

	view, err := r.Resolve(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !view.IsPro || !view.Overridden {
		t.Errorf("override view = pro:%v overridden:%v, want both", view.IsPro, view.Overridden)
	}
	if view.Plan != model.PlanTeam {
		t.Errorf("plan = %q, want team", view.Plan)
	}
}

func TestResolveExpiredOverrideIgnored(t *testing.T) {
	r, es := newTestResolver(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	if _, err := es.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := es.SetOverride(ctx, "u1", model.Override{
		Plan:      model.PlanPro,
		Reason:    "trial extension",
		ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("set override: %v", err)
	}

	view, err := r.Resolve(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if view.IsPro || view.Overridden {
		t.Errorf("expired override view = pro:%v overridden:%v, want neither", view.IsPro, view.Overridden)
	}
}

func TestResolveRollsOverStalePeriod(t *testing.T) {
	r, es := newTestResolver(t)
	ctx := context.Background()

	if _, err := es.Ensure(ctx, "u1", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, _, err := es.IncrementUsage(ctx, "u1", model.PeriodKey(time.Now()), 5); err != nil {
		t.Fatalf("increment: %v", err)
	}

	// A month later the counter starts fresh.
	r.now = func() time.Time { return time.Now().AddDate(0, 1, 0) }
	view, err := r.Resolve(ctx, "u1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if view.AuditsUsed != 0 {
		t.Errorf("audits_used = %d, want 0 after rollover", view.AuditsUsed)
	}
}

package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/newslens-app/newslens/internal/model"
	"github.com/newslens-app/newslens/internal/store"
)

// View is the resolver's answer to "is this user Pro and how much have they
// used". It is the only entitlement shape handlers see.
type View struct {
	UserID            string     `json:"user_id"`
	Plan              model.Plan `json:"plan"`
	Status            model.Status `json:"status"`
	IsPro             bool       `json:"is_pro"`
	AuditsUsed        int        `json:"audits_used"`
	AuditsLimit       int        `json:"audits_limit"` // -1 means unlimited
	AuditsRemaining   int        `json:"audits_remaining"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	Overridden        bool       `json:"overridden,omitempty"`
}

// Resolver computes a single authoritative entitlement answer from the store.
// No secondary stores, no allow-lists, no client-supplied signals.
type Resolver struct {
	entitlements *store.EntitlementStore
	logger       *slog.Logger
	now          func() time.Time
}

func NewResolver(es *store.EntitlementStore, logger *slog.Logger) *Resolver {
	return &Resolver{entitlements: es, logger: logger, now: time.Now}
}

// Resolve reads the record (creating it lazily for first-time users), applies
// the calendar-month rollover, and computes the canonical Pro rule:
// active status, paid plan, and an unexpired billing period.
func (r *Resolver) Resolve(ctx context.Context, userID, email string) (*View, error) {
	rec, err := r.entitlements.Ensure(ctx, userID, email)
	if err != nil {
		return nil, fmt.Errorf("resolve entitlement: %w", err)
	}

	now := r.now().UTC()
	period := model.PeriodKey(now)
	if rec.UsagePeriod != period {
		if _, err := r.entitlements.Rollover(ctx, userID, period); err != nil {
			return nil, fmt.Errorf("resolve entitlement: %w", err)
		}
		rec, err = r.entitlements.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("resolve entitlement: %w", err)
		}
	}

	return r.view(rec, now), nil
}

func (r *Resolver) view(rec *model.Entitlement, now time.Time) *View {
	plan := rec.Plan
	status := rec.Status
	overridden := false

	if rec.Override.Active(now) {
		plan = rec.Override.Plan
		status = model.StatusActive
		overridden = true
	}

	// A stale active flag with an expired period must not grant access.
	periodValid := rec.CurrentPeriodEnd == nil || rec.CurrentPeriodEnd.After(now)
	isPro := status == model.StatusActive && IsPaidPlan(plan) && periodValid
	if overridden {
		// An admin override stands on its own expiry, not the provider's.
		isPro = IsPaidPlan(plan)
	}

	limit := AuditsLimit(plan)
	if !isPro && plan != model.PlanFree {
		// Paid plan without an active subscription gets free-tier limits.
		limit = AuditsLimit(model.PlanFree)
	}

	remaining := 0
	if limit == Unlimited {
		remaining = Unlimited
	} else if rec.AuditsUsed < limit {
		remaining = limit - rec.AuditsUsed
	}

	return &View{
		UserID:            rec.UserID,
		Plan:              plan,
		Status:            status,
		IsPro:             isPro,
		AuditsUsed:        rec.AuditsUsed,
		AuditsLimit:       limit,
		AuditsRemaining:   remaining,
		CurrentPeriodEnd:  rec.CurrentPeriodEnd,
		CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
		Overridden:        overridden,
	}
}

// FreeFallback is the most conservative view, used by read paths when the
// store is unavailable. Callers must log the degradation; privileged writes
// must never use it.
func FreeFallback(userID string) *View {
	limit := AuditsLimit(model.PlanFree)
	return &View{
		UserID:          userID,
		Plan:            model.PlanFree,
		Status:          model.StatusInactive,
		AuditsLimit:     limit,
		AuditsRemaining: 0,
	}
}

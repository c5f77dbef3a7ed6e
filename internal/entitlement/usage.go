package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/newslens-app/newslens/internal/model"
	"github.com/newslens-app/newslens/internal/store"
)

// ErrLimitExceeded is returned when a free-tier increment would pass the cap.
// The counter is not mutated in that case.
var ErrLimitExceeded = errors.New("audit limit exceeded")

// UsageResult reports the counter state after an increment attempt.
type UsageResult struct {
	AuditsUsed  int
	AuditsLimit int
	Allowed     bool
}

// Counter enforces the monthly audit cap. Pro users are counted for
// analytics but never blocked; capped tiers are stopped by a conditional
// update at the store, not a read-then-write in application code.
type Counter struct {
	entitlements *store.EntitlementStore
	resolver     *Resolver
	logger       *slog.Logger
	now          func() time.Time
}

func NewCounter(es *store.EntitlementStore, resolver *Resolver, logger *slog.Logger) *Counter {
	return &Counter{entitlements: es, resolver: resolver, logger: logger, now: time.Now}
}

// Increment consumes one audit for the user. Callers must treat
// ErrLimitExceeded as a quota refusal, not a server fault.
func (c *Counter) Increment(ctx context.Context, userID, email string) (*UsageResult, error) {
	view, err := c.resolver.Resolve(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	limit := view.AuditsLimit
	if view.IsPro {
		// Tracked for analytics only; never blocks.
		limit = Unlimited
	}

	period := model.PeriodKey(c.now())
	used, allowed, err := c.entitlements.IncrementUsage(ctx, userID, period, limit)
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}
	if !allowed {
		return &UsageResult{AuditsUsed: used, AuditsLimit: limit}, ErrLimitExceeded
	}
	return &UsageResult{AuditsUsed: used, AuditsLimit: limit, Allowed: true}, nil
}

// Reset zeroes the counter for the current period, for administrative use.
func (c *Counter) Reset(ctx context.Context, userID string) error {
	if err := c.entitlements.ResetUsage(ctx, userID, model.PeriodKey(c.now())); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}

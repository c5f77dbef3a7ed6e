package model

import "time"

// Plan is the purchasable subscription tier.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
	PlanTeam  Plan = "team"
)

// ValidPlan reports whether p is a known plan.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanFree, PlanBasic, PlanPro, PlanTeam:
		return true
	}
	return false
}

// Status is the subscription lifecycle state mirrored from the payment provider.
type Status string

const (
	StatusInactive  Status = "inactive"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusTrialing  Status = "trialing"
)

// Override grants a plan by administrative action. It is stored on the
// entitlement record so it is auditable and reversible, unlike a hardcoded
// allow-list.
type Override struct {
	Plan      Plan       `json:"plan"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Active reports whether the override applies at the given time.
func (o *Override) Active(now time.Time) bool {
	if o == nil || o.Plan == "" {
		return false
	}
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// Entitlement is the single authoritative billing record for a user.
// The webhook processor and the usage counter are its only writers.
type Entitlement struct {
	UserID               string     `json:"user_id"`
	Email                *string    `json:"email,omitempty"`
	Plan                 Plan       `json:"plan"`
	Status               Status     `json:"status"`
	AuditsUsed           int        `json:"audits_used"`
	UsagePeriod          string     `json:"usage_period"` // "YYYY-MM" calendar month key
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	ProviderUpdatedAt    *time.Time `json:"provider_updated_at,omitempty"`
	Override             *Override  `json:"override,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// PeriodKey returns the calendar-month usage period key for t.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Audit is one submitted article analysis, recorded for history and analytics.
type Audit struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SourceURL string    `json:"source_url,omitempty"`
	Title     string    `json:"title,omitempty"`
	BiasScore float64   `json:"bias_score"`
	Verdict   string    `json:"verdict,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

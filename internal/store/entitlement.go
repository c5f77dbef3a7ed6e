package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/newslens-app/newslens/internal/model"
)

// EntitlementStore persists the authoritative per-user entitlement record.
type EntitlementStore struct {
	db *sql.DB
}

func NewEntitlementStore(db *sql.DB) *EntitlementStore {
	return &EntitlementStore{db: db}
}

const entitlementCols = `user_id, email, plan, status, audits_used, usage_period,
	current_period_end, stripe_customer_id, stripe_subscription_id,
	cancel_at_period_end, provider_updated_at,
	override_plan, override_reason, override_expires_at,
	created_at, updated_at`

func scanEntitlement(scanner interface{ Scan(...any) error }) (*model.Entitlement, error) {
	var e model.Entitlement
	var email, customerID, subscriptionID sql.NullString
	var periodEnd, providerUpdated, overrideExpires sql.NullTime
	var cancelAtPeriodEnd int
	var overridePlan, overrideReason sql.NullString
	err := scanner.Scan(
		&e.UserID, &email, &e.Plan, &e.Status, &e.AuditsUsed, &e.UsagePeriod,
		&periodEnd, &customerID, &subscriptionID,
		&cancelAtPeriodEnd, &providerUpdated,
		&overridePlan, &overrideReason, &overrideExpires,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		e.Email = &email.String
	}
	if customerID.Valid {
		e.StripeCustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		e.StripeSubscriptionID = &subscriptionID.String
	}
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		e.CurrentPeriodEnd = &t
	}
	if providerUpdated.Valid {
		t := providerUpdated.Time.UTC()
		e.ProviderUpdatedAt = &t
	}
	e.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	if overridePlan.Valid && overridePlan.String != "" {
		o := &model.Override{Plan: model.Plan(overridePlan.String), Reason: overrideReason.String}
		if overrideExpires.Valid {
			t := overrideExpires.Time.UTC()
			o.ExpiresAt = &t
		}
		e.Override = o
	}
	return &e, nil
}

// Ensure creates the record lazily on first contact (plan=free, zero usage)
// and returns it. An existing record keeps its state; a missing email is
// backfilled from the verified identity.
func (s *EntitlementStore) Ensure(ctx context.Context, userID, email string) (*model.Entitlement, error) {
	var emailArg sql.NullString
	if email != "" {
		emailArg = sql.NullString{String: email, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entitlements (user_id, email, plan, status, audits_used, usage_period)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT (user_id) DO UPDATE SET email = COALESCE(entitlements.email, excluded.email)`,
		userID, emailArg, model.PlanFree, model.StatusInactive, model.PeriodKey(time.Now()),
	)
	if err != nil {
		return nil, unavailable("ensure entitlement", err)
	}
	return s.Get(ctx, userID)
}

func (s *EntitlementStore) Get(ctx context.Context, userID string) (*model.Entitlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitlementCols+` FROM entitlements WHERE user_id = ?`, userID)
	e, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get entitlement", err)
	}
	return e, nil
}

// GetByEmail is a migration-era lookup only; user_id is the key of record.
func (s *EntitlementStore) GetByEmail(ctx context.Context, email string) (*model.Entitlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitlementCols+` FROM entitlements WHERE email = ? ORDER BY updated_at DESC LIMIT 1`, email)
	e, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get entitlement by email", err)
	}
	return e, nil
}

// GetByCustomerID resolves a record from the payment provider's customer id.
// Webhook events carry that id rather than our user id.
func (s *EntitlementStore) GetByCustomerID(ctx context.Context, customerID string) (*model.Entitlement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entitlementCols+` FROM entitlements WHERE stripe_customer_id = ?`, customerID)
	e, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get entitlement by customer id", err)
	}
	return e, nil
}

func (s *EntitlementStore) SetCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entitlements SET stripe_customer_id = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		customerID, userID)
	if err != nil {
		return unavailable("set customer id", err)
	}
	return nil
}

// ProviderState is the subscription snapshot derived from a provider event.
// UpdatedAt is the provider's timestamp, not our arrival time; writes guarded
// by it keep out-of-order webhook deliveries from regressing state.
type ProviderState struct {
	Plan              model.Plan
	Status            model.Status
	CustomerID        string
	SubscriptionID    string
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
	UpdatedAt         time.Time
	ResetUsage        bool
}

// ApplyProviderState writes st to the record unless the stored state carries a
// newer provider timestamp. Returns false when the write was discarded as
// stale. Equal timestamps reapply, which is idempotent.
func (s *EntitlementStore) ApplyProviderState(ctx context.Context, userID string, st ProviderState) (bool, error) {
	var customerArg, subscriptionArg sql.NullString
	if st.CustomerID != "" {
		customerArg = sql.NullString{String: st.CustomerID, Valid: true}
	}
	if st.SubscriptionID != "" {
		subscriptionArg = sql.NullString{String: st.SubscriptionID, Valid: true}
	}
	var periodEndArg sql.NullTime
	if st.PeriodEnd != nil {
		periodEndArg = sql.NullTime{Time: st.PeriodEnd.UTC(), Valid: true}
	}
	cancel := 0
	if st.CancelAtPeriodEnd {
		cancel = 1
	}
	reset := 0
	if st.ResetUsage {
		reset = 1
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET
			plan = ?,
			status = ?,
			stripe_customer_id = COALESCE(?, stripe_customer_id),
			stripe_subscription_id = COALESCE(?, stripe_subscription_id),
			current_period_end = ?,
			cancel_at_period_end = ?,
			provider_updated_at = ?,
			audits_used = CASE WHEN ? = 1 THEN 0 ELSE audits_used END,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
		  AND (provider_updated_at IS NULL OR provider_updated_at <= ?)`,
		st.Plan, st.Status, customerArg, subscriptionArg, periodEndArg,
		cancel, st.UpdatedAt.UTC(), reset, userID, st.UpdatedAt.UTC(),
	)
	if err != nil {
		return false, unavailable("apply provider state", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("apply provider state", err)
	}
	return n > 0, nil
}

// ApplyStatus updates only the lifecycle status (grace-period transitions such
// as past_due), leaving the plan untouched. Same staleness guard as
// ApplyProviderState.
func (s *EntitlementStore) ApplyStatus(ctx context.Context, userID string, status model.Status, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET
			status = ?,
			provider_updated_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
		  AND (provider_updated_at IS NULL OR provider_updated_at <= ?)`,
		status, at.UTC(), userID, at.UTC(),
	)
	if err != nil {
		return false, unavailable("apply status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("apply status", err)
	}
	return n > 0, nil
}

// ApplyRenewal marks a paid invoice: status active and a fresh period end,
// guarded by the provider timestamp like every other provider write.
func (s *EntitlementStore) ApplyRenewal(ctx context.Context, userID string, periodEnd *time.Time, at time.Time) (bool, error) {
	var periodEndArg sql.NullTime
	if periodEnd != nil {
		periodEndArg = sql.NullTime{Time: periodEnd.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET
			status = ?,
			current_period_end = COALESCE(?, current_period_end),
			provider_updated_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
		  AND (provider_updated_at IS NULL OR provider_updated_at <= ?)`,
		model.StatusActive, periodEndArg, at.UTC(), userID, at.UTC(),
	)
	if err != nil {
		return false, unavailable("apply renewal", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("apply renewal", err)
	}
	return n > 0, nil
}

// Rollover resets the usage counter when the record's stored period differs
// from period. The compare-and-set on usage_period makes the reset happen at
// most once per period, even under concurrent requests at the boundary.
func (s *EntitlementStore) Rollover(ctx context.Context, userID, period string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET audits_used = 0, usage_period = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND usage_period <> ?`,
		period, userID, period,
	)
	if err != nil {
		return false, unavailable("rollover usage period", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("rollover usage period", err)
	}
	return n > 0, nil
}

// IncrementUsage bumps the audit counter for the given period. limit < 0
// means unlimited. The cap is enforced inside the UPDATE itself so two
// concurrent submissions cannot both slip past the limit.
func (s *EntitlementStore) IncrementUsage(ctx context.Context, userID, period string, limit int) (used int, allowed bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET audits_used = audits_used + 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND usage_period = ? AND (? < 0 OR audits_used < ?)`,
		userID, period, limit, limit,
	)
	if err != nil {
		return 0, false, unavailable("increment usage", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, unavailable("increment usage", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT audits_used FROM entitlements WHERE user_id = ?`, userID)
	if err := row.Scan(&used); err != nil {
		return 0, false, unavailable("read usage", err)
	}
	return used, n > 0, nil
}

// ResetUsage unconditionally zeroes the counter for the given period.
// Administrative path; period rollover uses Rollover's compare-and-set.
func (s *EntitlementStore) ResetUsage(ctx context.Context, userID, period string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET audits_used = 0, usage_period = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		period, userID,
	)
	if err != nil {
		return unavailable("reset usage", err)
	}
	return nil
}

// SetOverride stores an administrative plan override on the record.
func (s *EntitlementStore) SetOverride(ctx context.Context, userID string, o model.Override) error {
	var expiresArg sql.NullTime
	if o.ExpiresAt != nil {
		expiresArg = sql.NullTime{Time: o.ExpiresAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET override_plan = ?, override_reason = ?, override_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		o.Plan, o.Reason, expiresArg, userID,
	)
	if err != nil {
		return unavailable("set override", err)
	}
	return nil
}

func (s *EntitlementStore) ClearOverride(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET override_plan = NULL, override_reason = NULL, override_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return unavailable("clear override", err)
	}
	return nil
}

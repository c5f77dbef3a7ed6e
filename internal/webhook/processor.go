package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/newslens-app/newslens/internal/model"
	"github.com/newslens-app/newslens/internal/payment"
	"github.com/newslens-app/newslens/internal/store"
)

// Outcome classifies what processing an event did. Every outcome except a
// returned error is acknowledged to the provider with a 2xx.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeStale        Outcome = "stale"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnresolvable Outcome = "unresolvable"
)

// Archiver receives events that could not be mapped to a user, so they can be
// replayed after manual reconciliation instead of being retried forever.
type Archiver interface {
	ArchiveEvent(ctx context.Context, event stripe.Event, reason string) error
}

// Notifier sends best-effort billing notices. Failures are logged, never
// propagated into webhook handling.
type Notifier interface {
	PaymentFailed(ctx context.Context, email string) error
}

// PriceMapper resolves a provider price id to one of our plans.
type PriceMapper interface {
	PlanForPrice(priceID string) model.Plan
}

// Processor applies verified provider events to the entitlement store.
// Signature verification happens in the HTTP handler before Process is
// called; Process assumes an authentic event.
type Processor struct {
	entitlements *store.EntitlementStore
	events       *store.EventStore
	prices       PriceMapper
	archive      Archiver // optional
	notifier     Notifier // optional
	logger       *slog.Logger
	now          func() time.Time
}

func NewProcessor(es *store.EntitlementStore, ev *store.EventStore, prices PriceMapper, archive Archiver, notifier Notifier, logger *slog.Logger) *Processor {
	return &Processor{
		entitlements: es,
		events:       ev,
		prices:       prices,
		archive:      archive,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// Process applies one event. Re-delivery of an already-applied event id
// returns OutcomeDuplicate without touching the store; events older than the
// stored provider state return OutcomeStale. Both are acknowledged.
func (p *Processor) Process(ctx context.Context, event stripe.Event) (Outcome, error) {
	switch event.Type {
	case "checkout.session.completed",
		"customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted",
		"invoice.paid",
		"invoice.payment_failed":
	default:
		return OutcomeIgnored, nil
	}

	fresh, err := p.events.MarkProcessed(ctx, event.ID, string(event.Type))
	if err != nil {
		return "", fmt.Errorf("process event %s: %w", event.ID, err)
	}
	if !fresh {
		p.logger.Info("duplicate webhook event", "event_id", event.ID, "type", event.Type)
		return OutcomeDuplicate, nil
	}

	outcome, err := p.dispatch(ctx, event)
	if err != nil {
		// Unmark so the provider's retry of this delivery is not dropped as a
		// duplicate. The timestamp guard keeps the retry safe regardless.
		if ferr := p.events.Forget(ctx, event.ID); ferr != nil {
			p.logger.Error("forget failed event", "event_id", event.ID, "error", ferr)
		}
		return "", fmt.Errorf("process event %s: %w", event.ID, err)
	}
	return outcome, nil
}

func (p *Processor) dispatch(ctx context.Context, event stripe.Event) (Outcome, error) {
	eventTime := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case "checkout.session.completed":
		return p.checkoutCompleted(ctx, event, eventTime)
	case "customer.subscription.created", "customer.subscription.updated":
		return p.subscriptionChanged(ctx, event, eventTime)
	case "customer.subscription.deleted":
		return p.subscriptionDeleted(ctx, event, eventTime)
	case "invoice.paid":
		return p.invoicePaid(ctx, event, eventTime)
	case "invoice.payment_failed":
		return p.invoicePaymentFailed(ctx, event, eventTime)
	}
	return OutcomeIgnored, nil
}

func (p *Processor) checkoutCompleted(ctx context.Context, event stripe.Event, at time.Time) (Outcome, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", fmt.Errorf("unmarshal checkout session: %w", err)
	}

	userID := sess.Metadata["userId"]
	if userID == "" {
		userID = sess.ClientReferenceID
	}
	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	email := ""
	if sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}

	rec, err := p.resolveUser(ctx, userID, customerID, email)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return p.unresolvable(ctx, event, "checkout session has no user mapping")
	}

	plan := model.Plan(sess.Metadata["plan"])
	if !model.ValidPlan(plan) || plan == model.PlanFree {
		plan = model.PlanPro
	}
	subscriptionID := ""
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}

	applied, err := p.entitlements.ApplyProviderState(ctx, rec.UserID, store.ProviderState{
		Plan:           plan,
		Status:         model.StatusActive,
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		UpdatedAt:      at,
		ResetUsage:     true,
	})
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeStale, nil
	}

	p.logger.Info("checkout completed",
		"user_id", rec.UserID, "plan", plan, "subscription_id", subscriptionID)
	return OutcomeApplied, nil
}

func (p *Processor) subscriptionChanged(ctx context.Context, event stripe.Event, at time.Time) (Outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("unmarshal subscription: %w", err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	rec, err := p.resolveUser(ctx, sub.Metadata["userId"], customerID, "")
	if err != nil {
		return "", err
	}
	if rec == nil {
		return p.unresolvable(ctx, event, "subscription has no user mapping")
	}

	status := payment.StatusFromProvider(sub.Status)
	plan := model.PlanFree
	if status == model.StatusActive || status == model.StatusTrialing {
		plan = p.prices.PlanForPrice(payment.SubscriptionPriceID(&sub))
	}

	applied, err := p.entitlements.ApplyProviderState(ctx, rec.UserID, store.ProviderState{
		Plan:              plan,
		Status:            status,
		CustomerID:        customerID,
		SubscriptionID:    sub.ID,
		PeriodEnd:         payment.SubscriptionPeriodEnd(&sub),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		UpdatedAt:         at,
	})
	if err != nil {
		return "", err
	}
	if !applied {
		p.logger.Info("discarded stale subscription update",
			"user_id", rec.UserID, "event_id", event.ID)
		return OutcomeStale, nil
	}

	p.logger.Info("subscription state updated",
		"user_id", rec.UserID, "plan", plan, "status", status)
	return OutcomeApplied, nil
}

func (p *Processor) subscriptionDeleted(ctx context.Context, event stripe.Event, at time.Time) (Outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("unmarshal subscription: %w", err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	rec, err := p.resolveUser(ctx, sub.Metadata["userId"], customerID, "")
	if err != nil {
		return "", err
	}
	if rec == nil {
		return p.unresolvable(ctx, event, "deleted subscription has no user mapping")
	}

	applied, err := p.entitlements.ApplyProviderState(ctx, rec.UserID, store.ProviderState{
		Plan:      model.PlanFree,
		Status:    model.StatusCancelled,
		UpdatedAt: at,
	})
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeStale, nil
	}

	p.logger.Info("subscription cancelled", "user_id", rec.UserID)
	return OutcomeApplied, nil
}

func (p *Processor) invoicePaid(ctx context.Context, event stripe.Event, at time.Time) (Outcome, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return "", fmt.Errorf("unmarshal invoice: %w", err)
	}

	rec, err := p.resolveInvoiceUser(ctx, &invoice)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return p.unresolvable(ctx, event, "paid invoice has no user mapping")
	}

	var periodEnd *time.Time
	if invoice.PeriodEnd > 0 {
		t := time.Unix(invoice.PeriodEnd, 0).UTC()
		periodEnd = &t
	}

	applied, err := p.entitlements.ApplyRenewal(ctx, rec.UserID, periodEnd, at)
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeStale, nil
	}

	p.logger.Info("invoice paid", "user_id", rec.UserID, "period_end", periodEnd)
	return OutcomeApplied, nil
}

func (p *Processor) invoicePaymentFailed(ctx context.Context, event stripe.Event, at time.Time) (Outcome, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return "", fmt.Errorf("unmarshal invoice: %w", err)
	}

	rec, err := p.resolveInvoiceUser(ctx, &invoice)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return p.unresolvable(ctx, event, "failed invoice has no user mapping")
	}

	// Grace period: status flips to past_due, the plan stays.
	applied, err := p.entitlements.ApplyStatus(ctx, rec.UserID, model.StatusPastDue, at)
	if err != nil {
		return "", err
	}
	if !applied {
		return OutcomeStale, nil
	}

	if p.notifier != nil && rec.Email != nil {
		if err := p.notifier.PaymentFailed(ctx, *rec.Email); err != nil {
			p.logger.Error("payment failed notice", "user_id", rec.UserID, "error", err)
		}
	}

	p.logger.Warn("invoice payment failed", "user_id", rec.UserID)
	return OutcomeApplied, nil
}

// resolveUser maps an event to the entitlement record: explicit metadata user
// id first, then the customer-id index, then email as a migration fallback.
// Returns nil when no mapping exists.
func (p *Processor) resolveUser(ctx context.Context, userID, customerID, email string) (*model.Entitlement, error) {
	if userID != "" {
		return p.entitlements.Ensure(ctx, userID, email)
	}
	if customerID != "" {
		rec, err := p.entitlements.GetByCustomerID(ctx, customerID)
		if err != nil || rec != nil {
			return rec, err
		}
	}
	if email != "" {
		return p.entitlements.GetByEmail(ctx, email)
	}
	return nil, nil
}

func (p *Processor) resolveInvoiceUser(ctx context.Context, invoice *stripe.Invoice) (*model.Entitlement, error) {
	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	email := invoice.CustomerEmail
	return p.resolveUser(ctx, "", customerID, email)
}

func (p *Processor) unresolvable(ctx context.Context, event stripe.Event, reason string) (Outcome, error) {
	p.logger.Error("unresolvable webhook event",
		"event_id", event.ID, "type", event.Type, "reason", reason)
	if p.archive != nil {
		if err := p.archive.ArchiveEvent(ctx, event, reason); err != nil {
			p.logger.Error("archive event", "event_id", event.ID, "error", err)
		}
	}
	return OutcomeUnresolvable, nil
}

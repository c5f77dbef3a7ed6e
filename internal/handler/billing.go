package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/newslens-app/newslens/internal/auth"
	"github.com/newslens-app/newslens/internal/entitlement"
	"github.com/newslens-app/newslens/internal/model"
	"github.com/newslens-app/newslens/internal/payment"
	"github.com/newslens-app/newslens/internal/store"
)

const syncLeaseTTL = 30 * time.Second

// billingProvider is the slice of the payment client billing handlers use.
type billingProvider interface {
	EnsureCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, userID, customerID string, plan model.Plan, interval string) (*payment.CheckoutSession, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	Reactivate(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	PlanForPrice(priceID string) model.Plan
}

type BillingHandler struct {
	provider     billingProvider
	entitlements *store.EntitlementStore
	leases       *store.LeaseStore
	resolver     *entitlement.Resolver
	portalReturn string
	logger       *slog.Logger
}

func NewBillingHandler(provider billingProvider, es *store.EntitlementStore, ls *store.LeaseStore, resolver *entitlement.Resolver, portalReturn string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		provider:     provider,
		entitlements: es,
		leases:       ls,
		resolver:     resolver,
		portalReturn: portalReturn,
		logger:       logger,
	}
}

type checkoutRequest struct {
	Plan     string `json:"plan"`
	Interval string `json:"interval"`
}

// Checkout starts a subscription purchase and returns the hosted session URL.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_credential")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_request")
		return
	}
	plan := model.Plan(req.Plan)
	if !entitlement.IsPaidPlan(plan) {
		writeError(w, http.StatusBadRequest, "unknown plan", "invalid_request")
		return
	}

	customerID, err := h.ensureCustomer(r.Context(), ident)
	if err != nil {
		respondError(w, h.logger, "checkout", err)
		return
	}

	session, err := h.provider.CreateCheckoutSession(r.Context(), ident.UserID, customerID, plan, req.Interval)
	if err != nil {
		respondError(w, h.logger, "checkout", err)
		return
	}

	h.logger.Info("checkout session created", "user_id", ident.UserID, "plan", plan)
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID,
		"url":        session.URL,
	})
}

// Portal opens the provider's billing portal for payment method and invoice
// management. Users without a Stripe customer have nothing to manage.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_credential")
		return
	}

	rec, err := h.entitlements.Get(r.Context(), ident.UserID)
	if err != nil {
		respondError(w, h.logger, "billing portal", err)
		return
	}
	if rec == nil || rec.StripeCustomerID == nil {
		writeError(w, http.StatusNotFound, "no subscription on file", "no_subscription")
		return
	}

	url, err := h.provider.CreateBillingPortalSession(r.Context(), *rec.StripeCustomerID, h.portalReturn)
	if err != nil {
		respondError(w, h.logger, "billing portal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Cancel schedules the subscription to end at the period boundary. Access
// continues until then.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.setCancel(w, r, true)
}

// Reactivate undoes a pending cancellation before the period ends.
func (h *BillingHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.setCancel(w, r, false)
}

func (h *BillingHandler) setCancel(w http.ResponseWriter, r *http.Request, cancel bool) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_credential")
		return
	}

	// The subscription id comes from our record, never from the request:
	// users can only cancel what they own.
	rec, err := h.entitlements.Get(r.Context(), ident.UserID)
	if err != nil {
		respondError(w, h.logger, "set cancel", err)
		return
	}
	if rec == nil || rec.StripeSubscriptionID == nil {
		writeError(w, http.StatusNotFound, "no subscription on file", "no_subscription")
		return
	}

	var sub *stripe.Subscription
	if cancel {
		sub, err = h.provider.CancelAtPeriodEnd(r.Context(), *rec.StripeSubscriptionID)
	} else {
		sub, err = h.provider.Reactivate(r.Context(), *rec.StripeSubscriptionID)
	}
	if err != nil {
		respondError(w, h.logger, "set cancel", err)
		return
	}

	if err := h.applySubscription(r.Context(), ident.UserID, sub); err != nil {
		respondError(w, h.logger, "set cancel", err)
		return
	}

	h.logger.Info("subscription cancel flag updated",
		"user_id", ident.UserID, "cancel_at_period_end", cancel)
	h.respondView(w, r, ident)
}

// Sync reconciles the stored record against the provider, for support flows
// and delayed webhooks. The lease keeps concurrent syncs for one user from
// stacking up across instances.
func (h *BillingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_credential")
		return
	}

	acquired, err := h.leases.Acquire(r.Context(), ident.UserID, syncLeaseTTL)
	if err != nil {
		respondError(w, h.logger, "sync", err)
		return
	}
	if !acquired {
		writeError(w, http.StatusConflict, "sync already in progress", "sync_in_progress")
		return
	}
	defer func() {
		if err := h.leases.Release(context.WithoutCancel(r.Context()), ident.UserID); err != nil {
			h.logger.Error("release sync lease", "user_id", ident.UserID, "error", err)
		}
	}()

	rec, err := h.entitlements.Get(r.Context(), ident.UserID)
	if err != nil {
		respondError(w, h.logger, "sync", err)
		return
	}
	if rec == nil || rec.StripeSubscriptionID == nil {
		writeError(w, http.StatusNotFound, "no subscription on file", "no_subscription")
		return
	}

	sub, err := h.provider.RetrieveSubscription(r.Context(), *rec.StripeSubscriptionID)
	if err != nil {
		respondError(w, h.logger, "sync", err)
		return
	}
	if err := h.applySubscription(r.Context(), ident.UserID, sub); err != nil {
		respondError(w, h.logger, "sync", err)
		return
	}

	h.logger.Info("subscription synced", "user_id", ident.UserID)
	h.respondView(w, r, ident)
}

func (h *BillingHandler) ensureCustomer(ctx context.Context, ident auth.Identity) (string, error) {
	rec, err := h.entitlements.Ensure(ctx, ident.UserID, ident.Email)
	if err != nil {
		return "", err
	}
	if rec.StripeCustomerID != nil {
		return *rec.StripeCustomerID, nil
	}

	customerID, err := h.provider.EnsureCustomer(ctx, ident.UserID, ident.Email)
	if err != nil {
		return "", err
	}
	if err := h.entitlements.SetCustomerID(ctx, ident.UserID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

// applySubscription writes a provider snapshot fetched synchronously. It goes
// through the same guarded write as webhook events, so a newer webhook that
// landed in between is not clobbered.
func (h *BillingHandler) applySubscription(ctx context.Context, userID string, sub *stripe.Subscription) error {
	status := payment.StatusFromProvider(sub.Status)
	plan := model.PlanFree
	if status == model.StatusActive || status == model.StatusTrialing {
		plan = h.provider.PlanForPrice(payment.SubscriptionPriceID(sub))
	}

	st := store.ProviderState{
		Plan:              plan,
		Status:            status,
		SubscriptionID:    sub.ID,
		PeriodEnd:         payment.SubscriptionPeriodEnd(sub),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		UpdatedAt:         time.Now().UTC(),
	}
	if sub.Customer != nil {
		st.CustomerID = sub.Customer.ID
	}
	_, err := h.entitlements.ApplyProviderState(ctx, userID, st)
	return err
}

func (h *BillingHandler) respondView(w http.ResponseWriter, r *http.Request, ident auth.Identity) {
	view, err := h.resolver.Resolve(r.Context(), ident.UserID, ident.Email)
	if err != nil {
		respondError(w, h.logger, "resolve entitlement", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/newslens-app/newslens/internal/model"
)

const (
	callTimeout = 10 * time.Second
	retryBase   = 1 * time.Second
	maxRetries  = 2 // 3 attempts total
)

// Config holds Stripe credentials and the plan-to-price mapping.
type Config struct {
	SecretKey        string
	WebhookSecret    string
	BasicPriceID     string
	ProPriceID       string
	ProAnnualPriceID string
	TeamPriceID      string
	SuccessURL       string
	CancelURL        string
}

// Client wraps the Stripe API. All mutating calls run under a bounded
// timeout and retry transient failures with exponential backoff.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// CheckoutSession is the created checkout session the client redirects to.
type CheckoutSession struct {
	ID  string
	URL string
}

// EnsureCustomer creates a Stripe customer carrying our user id in metadata,
// so webhook events can always be mapped back to the user.
func (c *Client) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: map[string]string{"userId": userID},
	}
	var cust *stripe.Customer
	err := c.do(ctx, func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		cust, err = customer.New(params)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession starts a subscription checkout for the given plan.
func (c *Client) CreateCheckoutSession(ctx context.Context, userID, customerID string, plan model.Plan, interval string) (*CheckoutSession, error) {
	priceID, err := c.PriceID(plan, interval)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		ClientReferenceID:   stripe.String(userID),
		SuccessURL:          stripe.String(c.cfg.SuccessURL),
		CancelURL:           stripe.String(c.cfg.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"userId": userID, "plan": string(plan)},
		},
	}
	params.AddMetadata("userId", userID)
	params.AddMetadata("plan", string(plan))

	var sess *stripe.CheckoutSession
	err = c.do(ctx, func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		sess, err = checkoutsession.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreateBillingPortalSession returns a URL to Stripe's self-serve portal.
func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	var sess *stripe.BillingPortalSession
	err := c.do(ctx, func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		sess, err = portalsession.New(params)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// RetrieveSubscription fetches the provider's view of a subscription.
func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	var sub *stripe.Subscription
	err := c.do(ctx, func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		sub, err = subscription.Get(subscriptionID, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription: %w", err)
	}
	return sub, nil
}

// CancelAtPeriodEnd schedules the subscription to end at the period boundary.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return c.setCancel(ctx, subscriptionID, true)
}

// Reactivate clears a scheduled cancellation before the period ends.
func (c *Client) Reactivate(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return c.setCancel(ctx, subscriptionID, false)
}

func (c *Client) setCancel(ctx context.Context, subscriptionID string, cancel bool) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	var sub *stripe.Subscription
	err := c.do(ctx, func(callCtx context.Context) error {
		params.Context = callCtx
		var err error
		sub, err = subscription.Update(subscriptionID, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update subscription cancel state: %w", err)
	}
	return sub, nil
}

// VerifyWebhook checks the signature header against the shared secret and
// returns the parsed event. Verification is the authentication mechanism for
// the webhook endpoint; an unverified payload is never processed.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	return event, nil
}

// PriceID maps a plan and billing interval to the configured Stripe price.
func (c *Client) PriceID(plan model.Plan, interval string) (string, error) {
	switch plan {
	case model.PlanBasic:
		return c.required(c.cfg.BasicPriceID, plan)
	case model.PlanPro:
		if interval == "annual" {
			return c.required(c.cfg.ProAnnualPriceID, plan)
		}
		return c.required(c.cfg.ProPriceID, plan)
	case model.PlanTeam:
		return c.required(c.cfg.TeamPriceID, plan)
	}
	return "", fmt.Errorf("%w: plan %q is not purchasable", ErrInvalidRequest, plan)
}

func (c *Client) required(priceID string, plan model.Plan) (string, error) {
	if priceID == "" {
		return "", fmt.Errorf("%w: no price configured for plan %q", ErrInvalidRequest, plan)
	}
	return priceID, nil
}

// PlanForPrice is the reverse mapping used by the webhook processor when an
// event carries only a price id.
func (c *Client) PlanForPrice(priceID string) model.Plan {
	switch priceID {
	case c.cfg.BasicPriceID:
		return model.PlanBasic
	case c.cfg.ProPriceID, c.cfg.ProAnnualPriceID:
		return model.PlanPro
	case c.cfg.TeamPriceID:
		return model.PlanTeam
	}
	return model.PlanPro
}

// do runs one provider call with a bounded timeout, retrying transient
// failures (network, 5xx) with exponential backoff. Explicit rejections
// surface immediately as ErrInvalidRequest.
func (c *Client) do(ctx context.Context, call func(context.Context) error) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		err := call(callCtx)
		if err == nil {
			return nil
		}
		return classify(err)
	})
}

// classify translates provider errors into the taxonomy. Transient errors are
// marked retryable for the backoff loop.
func classify(err error) error {
	if stripeErr, ok := err.(*stripe.Error); ok {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.Type == stripe.ErrorTypeAPI {
			return retry.RetryableError(fmt.Errorf("%w: %w", ErrTransient, err))
		}
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	// Network failures and timeouts reach here without a provider error code.
	return retry.RetryableError(fmt.Errorf("%w: %w", ErrTransient, err))
}

// SubscriptionPeriodEnd extracts the current period end. Stripe reports it
// per subscription item; the latest item boundary is the effective one.
func SubscriptionPeriodEnd(sub *stripe.Subscription) *time.Time {
	if sub == nil || sub.Items == nil {
		return nil
	}
	var max int64
	for _, item := range sub.Items.Data {
		if item != nil && item.CurrentPeriodEnd > max {
			max = item.CurrentPeriodEnd
		}
	}
	if max == 0 {
		return nil
	}
	t := time.Unix(max, 0).UTC()
	return &t
}

// SubscriptionPriceID returns the price id of the first subscription item.
func SubscriptionPriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil {
			return item.Price.ID
		}
	}
	return ""
}

// StatusFromProvider maps Stripe subscription status onto our lifecycle.
func StatusFromProvider(s stripe.SubscriptionStatus) model.Status {
	switch s {
	case stripe.SubscriptionStatusActive:
		return model.StatusActive
	case stripe.SubscriptionStatusTrialing:
		return model.StatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return model.StatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return model.StatusCancelled
	default:
		return model.StatusInactive
	}
}

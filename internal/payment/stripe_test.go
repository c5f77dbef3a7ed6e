package payment

import (
	"errors"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/newslens-app/newslens/internal/model"
)

func testClient() *Client {
	return NewClient(Config{
		BasicPriceID:     "price_basic",
		ProPriceID:       "price_pro",
		ProAnnualPriceID: "price_pro_annual",
		TeamPriceID:      "price_team",
	})
}

func TestPriceID(t *testing.T) {
	c := testClient()

	tests := []struct {
		plan     model.Plan
		interval string
		want     string
		wantErr  bool
	}{
		{model.PlanBasic, "monthly", "price_basic", false},
		{model.PlanPro, "monthly", "price_pro", false},
		{model.PlanPro, "annual", "price_pro_annual", false},
		{model.PlanTeam, "monthly", "price_team", false},
		{model.PlanFree, "monthly", "", true},
		{model.Plan("bogus"), "monthly", "", true},
	}
	for _, tt := range tests {
		got, err := c.PriceID(tt.plan, tt.interval)
		if tt.wantErr {
			if err == nil {
				t.Errorf("PriceID(%q, %q): expected error", tt.plan, tt.interval)
			}
			continue
		}
		if err != nil {
			t.Errorf("PriceID(%q, %q): %v", tt.plan, tt.interval, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PriceID(%q, %q) = %q, want %q", tt.plan, tt.interval, got, tt.want)
		}
	}
}

func TestPlanForPrice(t *testing.T) {
	c := testClient()

	if got := c.PlanForPrice("price_basic"); got != model.PlanBasic {
		t.Errorf("PlanForPrice(basic) = %q", got)
	}
	if got := c.PlanForPrice("price_pro_annual"); got != model.PlanPro {
		t.Errorf("PlanForPrice(pro annual) = %q", got)
	}
	if got := c.PlanForPrice("price_team"); got != model.PlanTeam {
		t.Errorf("PlanForPrice(team) = %q", got)
	}
	// Unknown prices default to pro rather than silently downgrading a payer.
	if got := c.PlanForPrice("price_unknown"); got != model.PlanPro {
		t.Errorf("PlanForPrice(unknown) = %q", got)
	}
}

func TestClassifyInvalidRequest(t *testing.T) {
	err := classify(&stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: 400})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
	if errors.Is(err, ErrTransient) {
		t.Error("invalid request must not be transient")
	}
}

func TestClassifyServerError(t *testing.T) {
	err := classify(&stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 503})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}
}

func TestClassifyNetworkError(t *testing.T) {
	err := classify(errors.New("dial tcp: connection refused"))
	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}
}

func TestStatusFromProvider(t *testing.T) {
	tests := []struct {
		in   stripe.SubscriptionStatus
		want model.Status
	}{
		{stripe.SubscriptionStatusActive, model.StatusActive},
		{stripe.SubscriptionStatusTrialing, model.StatusTrialing},
		{stripe.SubscriptionStatusPastDue, model.StatusPastDue},
		{stripe.SubscriptionStatusCanceled, model.StatusCancelled},
		{stripe.SubscriptionStatusIncomplete, model.StatusInactive},
		{stripe.SubscriptionStatusUnpaid, model.StatusInactive},
	}
	for _, tt := range tests {
		if got := StatusFromProvider(tt.in); got != tt.want {
			t.Errorf("StatusFromProvider(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubscriptionPeriodEnd(t *testing.T) {
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	sub := &stripe.Subscription{
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{CurrentPeriodEnd: end.Unix()},
			},
		},
	}
	got := SubscriptionPeriodEnd(sub)
	if got == nil || !got.Equal(end) {
		t.Errorf("SubscriptionPeriodEnd = %v, want %v", got, end)
	}
}

func TestSubscriptionPeriodEndMissing(t *testing.T) {
	if got := SubscriptionPeriodEnd(&stripe.Subscription{}); got != nil {
		t.Errorf("expected nil period end, got %v", got)
	}
	if got := SubscriptionPeriodEnd(nil); got != nil {
		t.Errorf("expected nil period end for nil subscription, got %v", got)
	}
}

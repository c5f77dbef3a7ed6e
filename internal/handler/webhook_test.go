package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/newslens-app/newslens/internal/payment"
	"github.com/newslens-app/newslens/internal/webhook"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVerifier struct {
	event stripe.Event
	err   error
}

func (f *fakeVerifier) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return f.event, f.err
}

type fakeProcessor struct {
	outcome webhook.Outcome
	err     error
	calls   int
}

func (f *fakeProcessor) Process(_ context.Context, _ stripe.Event) (webhook.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

func TestWebhookOK(t *testing.T) {
	proc := &fakeProcessor{outcome: webhook.OutcomeApplied}
	h := NewWebhookHandler(&fakeVerifier{event: stripe.Event{ID: "evt_1"}}, proc, discardLogger())

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.HandleStripe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if proc.calls != 1 {
		t.Errorf("processor calls = %d, want 1", proc.calls)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewWebhookHandler(&fakeVerifier{err: payment.ErrSignatureInvalid}, proc, discardLogger())

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.HandleStripe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if proc.calls != 0 {
		t.Error("processor ran on a tampered event")
	}
	if !strings.Contains(rec.Body.String(), "invalid_signature") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestWebhookProcessingFailure(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db locked")}
	h := NewWebhookHandler(&fakeVerifier{event: stripe.Event{ID: "evt_1"}}, proc, discardLogger())

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.HandleStripe(rec, req)

	// Non-2xx makes the provider redeliver.
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestWebhookOversizedBody(t *testing.T) {
	h := NewWebhookHandler(&fakeVerifier{}, &fakeProcessor{}, discardLogger())

	big := strings.Repeat("x", maxWebhookBody+1)
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(big))
	rec := httptest.NewRecorder()
	h.HandleStripe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/newslens-app/newslens/internal/payment"
	"github.com/newslens-app/newslens/internal/webhook"
)

// Stripe sends events well under this; anything larger is not a webhook.
const maxWebhookBody = 64 << 10

type webhookVerifier interface {
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error)
}

type eventProcessor interface {
	Process(ctx context.Context, event stripe.Event) (webhook.Outcome, error)
}

type WebhookHandler struct {
	verifier  webhookVerifier
	processor eventProcessor
	logger    *slog.Logger
}

func NewWebhookHandler(verifier webhookVerifier, processor eventProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, processor: processor, logger: logger}
}

// HandleStripe receives provider webhooks. A 2xx acknowledges the delivery;
// anything else makes the provider retry, so only processing failures that a
// retry could fix return 500.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body", "invalid_request")
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrSignatureInvalid) {
			h.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			writeError(w, http.StatusBadRequest, "invalid signature", "invalid_signature")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed event", "invalid_request")
		return
	}

	outcome, err := h.processor.Process(r.Context(), event)
	if err != nil {
		h.logger.Error("webhook processing failed", "event_id", event.ID, "type", event.Type, "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed", "internal")
		return
	}

	h.logger.Info("webhook processed", "event_id", event.ID, "type", event.Type, "outcome", outcome)
	writeJSON(w, http.StatusOK, map[string]string{"received": "true", "outcome": string(outcome)})
}

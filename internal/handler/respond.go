package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/newslens-app/newslens/internal/analyzer"
	"github.com/newslens-app/newslens/internal/entitlement"
	"github.com/newslens-app/newslens/internal/payment"
	"github.com/newslens-app/newslens/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorEnvelope{Error: message, Code: code})
}

// respondError maps sentinel errors to HTTP responses. Provider and store
// errors are logged with detail but answered with a generic envelope; raw
// upstream messages never reach the client.
func respondError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, entitlement.ErrLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "monthly audit limit reached", "limit_exceeded")
	case errors.Is(err, payment.ErrNoSubscription):
		writeError(w, http.StatusNotFound, "no subscription on file", "no_subscription")
	case errors.Is(err, payment.ErrInvalidRequest):
		logger.Warn(op, "error", err)
		writeError(w, http.StatusBadRequest, "payment provider rejected the request", "invalid_request")
	case errors.Is(err, payment.ErrTransient):
		logger.Error(op, "error", err)
		writeError(w, http.StatusBadGateway, "payment provider unavailable", "provider_unavailable")
	case errors.Is(err, analyzer.ErrUnavailable):
		logger.Error(op, "error", err)
		writeError(w, http.StatusBadGateway, "analysis service unavailable", "analysis_unavailable")
	case errors.Is(err, store.ErrUnavailable):
		logger.Error(op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable", "store_unavailable")
	default:
		logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "internal")
	}
}

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/newslens-app/newslens/internal/analyzer"
	"github.com/newslens-app/newslens/internal/auth"
	"github.com/newslens-app/newslens/internal/entitlement"
	"github.com/newslens-app/newslens/internal/model"
	"github.com/newslens-app/newslens/internal/store"
)

type analysisService interface {
	Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error)
}

type AuditHandler struct {
	counter  *entitlement.Counter
	analyzer analysisService
	audits   *store.AuditStore
	logger   *slog.Logger
}

func NewAuditHandler(counter *entitlement.Counter, svc analysisService, audits *store.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{counter: counter, analyzer: svc, audits: audits, logger: logger}
}

type auditRequest struct {
	SourceURL string `json:"source_url"`
	Text      string `json:"text"`
}

type auditResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	BiasScore   float64 `json:"bias_score"`
	Verdict     string  `json:"verdict"`
	Summary     string  `json:"summary,omitempty"`
	AuditsUsed  int     `json:"audits_used"`
	AuditsLimit int     `json:"audits_limit"`
}

// Create runs one bias audit. The quota is consumed before the analysis call:
// a spent audit that then fails analysis is rarer and cheaper than an
// uncounted one, and the counter is the contractual gate.
func (h *AuditHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_credential")
		return
	}

	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_request")
		return
	}
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	req.Text = strings.TrimSpace(req.Text)
	if req.SourceURL == "" && req.Text == "" {
		writeError(w, http.StatusBadRequest, "source_url or text is required", "invalid_request")
		return
	}

	usage, err := h.counter.Increment(r.Context(), ident.UserID, ident.Email)
	if err != nil {
		respondError(w, h.logger, "audit quota", err)
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), analyzer.Request{
		SourceURL: req.SourceURL,
		Text:      req.Text,
	})
	if err != nil {
		respondError(w, h.logger, "analyze article", err)
		return
	}

	audit := &model.Audit{
		ID:        uuid.NewString(),
		UserID:    ident.UserID,
		SourceURL: req.SourceURL,
		Title:     result.Title,
		BiasScore: result.BiasScore,
		Verdict:   result.Verdict,
	}
	if err := h.audits.Create(r.Context(), audit); err != nil {
		// The verdict is already computed; losing the history row is not
		// worth failing the request.
		h.logger.Error("record audit", "user_id", ident.UserID, "error", err)
	}

	writeJSON(w, http.StatusCreated, auditResponse{
		ID:          audit.ID,
		Title:       result.Title,
		BiasScore:   result.BiasScore,
		Verdict:     result.Verdict,
		Summary:     result.Summary,
		AuditsUsed:  usage.AuditsUsed,
		AuditsLimit: usage.AuditsLimit,
	})
}

// List returns the user's recent audits.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_credential")
		return
	}

	audits, err := h.audits.ListRecent(r.Context(), ident.UserID, 20)
	if err != nil {
		respondError(w, h.logger, "list audits", err)
		return
	}
	if audits == nil {
		audits = []model.Audit{}
	}
	writeJSON(w, http.StatusOK, audits)
}

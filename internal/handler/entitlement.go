package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/newslens-app/newslens/internal/auth"
	"github.com/newslens-app/newslens/internal/entitlement"
	"github.com/newslens-app/newslens/internal/store"
)

type EntitlementHandler struct {
	resolver *entitlement.Resolver
	logger   *slog.Logger
}

func NewEntitlementHandler(resolver *entitlement.Resolver, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{resolver: resolver, logger: logger}
}

// entitlementResponse is the resolver view plus display fields the frontend
// renders directly.
type entitlementResponse struct {
	*entitlement.View
	PercentUsed int  `json:"percent_used"`
	NearLimit   bool `json:"near_limit"`
	Degraded    bool `json:"degraded,omitempty"`
}

// Get answers "what can this user do right now". A storage outage degrades to
// the free-tier view instead of failing the page; privileged writes elsewhere
// never take that shortcut.
func (h *EntitlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_credential")
		return
	}

	view, err := h.resolver.Resolve(r.Context(), ident.UserID, ident.Email)
	if err != nil {
		if !errors.Is(err, store.ErrUnavailable) {
			respondError(w, h.logger, "get entitlement", err)
			return
		}
		h.logger.Error("entitlement read degraded to free tier", "user_id", ident.UserID, "error", err)
		writeJSON(w, http.StatusOK, entitlementResponse{
			View:        entitlement.FreeFallback(ident.UserID),
			PercentUsed: 100,
			NearLimit:   true,
			Degraded:    true,
		})
		return
	}

	writeJSON(w, http.StatusOK, display(view))
}

func display(view *entitlement.View) entitlementResponse {
	resp := entitlementResponse{View: view}
	if view.AuditsLimit > 0 {
		resp.PercentUsed = view.AuditsUsed * 100 / view.AuditsLimit
		if resp.PercentUsed > 100 {
			resp.PercentUsed = 100
		}
		resp.NearLimit = view.AuditsRemaining <= 1
	}
	return resp
}

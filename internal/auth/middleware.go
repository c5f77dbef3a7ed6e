package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// RequireAuth rejects requests without a valid bearer credential and stores
// the verified identity in the request context.
func RequireAuth(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing_credential")
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("auth failure", "path", r.URL.Path, "error", err)
				if errors.Is(err, ErrTokenExpired) {
					unauthorized(w, "credential_expired")
					return
				}
				unauthorized(w, "invalid_credential")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","code":"` + code + `"}`))
}

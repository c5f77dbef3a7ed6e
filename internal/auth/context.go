package auth

import "context"

type contextKey struct{}

// Identity is the verified caller extracted from a bearer credential.
type Identity struct {
	UserID string
	Email  string
}

// WithIdentity stores the verified identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext retrieves the verified identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// UserID returns the verified user id, or "" when the request is anonymous.
func UserID(ctx context.Context) string {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return id.UserID
}

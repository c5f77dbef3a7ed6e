package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

var (
	// ErrTokenInvalid covers malformed, mis-signed, or mis-scoped credentials.
	ErrTokenInvalid = errors.New("invalid credential")
	// ErrTokenExpired is split out so handlers can hint the client to refresh.
	ErrTokenExpired = errors.New("credential expired")
)

// Verifier validates bearer JWTs against the identity provider's JWKS.
// There is no decode-without-verify path: an unverifiable token is rejected.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

// NewVerifier builds a verifier for the given issuer and audience. jwksURL
// overrides the issuer's well-known JWKS location, used by tests.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = normalizeIssuer(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if audience == "" {
		return nil, errors.New("audience must be set")
	}
	if jwksURL == "" {
		jwksURL = issuer + ".well-known/jwks.json"
	}

	keys, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("init jwks keyfunc: %w", err)
	}

	return newVerifier(issuer, audience, keys), nil
}

// NewVerifierWithKeys builds a verifier from a static JWK set, used by tests.
func NewVerifierWithKeys(issuer, audience string, jwks []byte) (*Verifier, error) {
	issuer = normalizeIssuer(issuer)
	keys, err := keyfunc.NewJWKSetJSON(jwks)
	if err != nil {
		return nil, fmt.Errorf("parse jwk set: %w", err)
	}
	return newVerifier(issuer, audience, keys), nil
}

func newVerifier(issuer, audience string, keys keyfunc.Keyfunc) *Verifier {
	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
		}),
	)
	return &Verifier{issuer: issuer, audience: audience, keyfunc: keys, parser: parser}
}

// Verify parses and validates a bearer token and returns the caller identity.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc.Keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return Identity{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unexpected claims type", ErrTokenInvalid)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: token missing sub", ErrTokenInvalid)
	}
	email, _ := claims["email"].(string)

	return Identity{UserID: sub, Email: strings.TrimSpace(email)}, nil
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer
}

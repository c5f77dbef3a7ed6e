package store

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks failures of the underlying database. Callers must
// surface degraded mode instead of silently treating the user as free tier.
var ErrUnavailable = errors.New("entitlement store unavailable")

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

package payment

import "errors"

var (
	// ErrInvalidRequest is a provider rejection that retrying cannot fix
	// (unknown subscription id, bad price, malformed params).
	ErrInvalidRequest = errors.New("payment provider rejected request")

	// ErrTransient covers network failures, timeouts, and provider 5xx.
	// Calls are retried internally before this surfaces.
	ErrTransient = errors.New("transient payment provider error")

	// ErrSignatureInvalid means a webhook payload failed signature
	// verification and must not be processed.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrNoSubscription is returned for portal/cancel operations when the
	// user has no stored provider subscription.
	ErrNoSubscription = errors.New("no subscription")
)

// Package payment wraps the external payment provider. The rest of the
// application only sees intents and signature checks, never provider HTTP.
package payment

import (
	"context"
	"errors"
)

var (
	// ErrGatewayUnavailable is returned when the provider cannot be reached
	// or answers with a server error. Callers may retry; no local state is
	// left behind.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInvalidSignature is returned when a callback signature does not
	// match. Treated as a potential forgery: no side effects follow.
	ErrInvalidSignature = errors.New("invalid payment signature")
)

// Intent is a provider-side payment order: "we expect a payment of Amount
// minor units for reference Receipt".
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Gateway mints payment intents and verifies client-relayed callbacks.
type Gateway interface {
	// CreateIntent asks the provider for a payment order. Failure means
	// ErrGatewayUnavailable (wrapped) — the caller must not have created
	// any local state yet.
	CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (*Intent, error)
	// VerifySignature checks the provider signature over intentID and
	// paymentID in constant time. Returns ErrInvalidSignature on mismatch.
	VerifySignature(intentID, paymentID, signature string) error
	// KeyID is the public key the browser needs to open the payment UI.
	KeyID() string
}

package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Gateway represents a connector to the external payment provider.
type Gateway interface {
	OpenCharge(ctx context.Context, req ChargeRequest) (Charge, error)
}

// Customer carries the account holder details the provider requires on a
// charge.
type Customer struct {
	Name     string
	Email    string
	Document string
	Phone    string
}

// ChargeRequest captures everything needed to open a charge with the
// provider. ExternalReference embeds the local account id so a later
// notification can be matched back even without a provider reference.
type ChargeRequest struct {
	AmountMinorUnits  int64
	Customer          Customer
	ExternalReference string
	PostbackURL       string
}

// Charge is the provider's answer to a successful charge creation. Raw holds
// the untouched response body (QR code data and payment instructions) for the
// client.
type Charge struct {
	ProviderReference string
	Raw               json.RawMessage
}

// Error is the typed failure for provider calls. Transport failures and
// timeouts carry HTTPStatus 0: the charge outcome is unknown and the caller
// must not record a pending transaction for it.
type Error struct {
	HTTPStatus int
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %v", e.Err)
	}
	return fmt.Sprintf("gateway: provider returned status %d", e.HTTPStatus)
}

func (e *Error) Unwrap() error { return e.Err }

// StaticGateway simulates a provider that accepts every charge. Used in tests
// and local development.
type StaticGateway struct{}

// OpenCharge approves the charge with a synthetic reference.
func (StaticGateway) OpenCharge(_ context.Context, req ChargeRequest) (Charge, error) {
	ref := uuid.NewString()
	raw, _ := json.Marshal(map[string]any{
		"id":     ref,
		"status": "PENDING",
		"amount": req.AmountMinorUnits,
	})
	return Charge{ProviderReference: ref, Raw: raw}, nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const chargePath = "/api/user/transactions"

// HTTPGateway talks to the provider's charge API over HTTPS with Basic auth.
// Retry policy belongs to the caller; this client makes exactly one attempt
// per OpenCharge call.
type HTTPGateway struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewHTTPGateway builds a provider client. The timeout bounds the whole
// charge call; an expired deadline surfaces as *Error with HTTPStatus 0.
func NewHTTPGateway(baseURL, secret string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargePayload struct {
	Amount        int64          `json:"amount"`
	PaymentMethod string         `json:"paymentMethod"`
	Customer      chargeCustomer `json:"customer"`
	Items         []chargeItem   `json:"items"`
	Traceable     bool           `json:"traceable"`
	PostbackURL   string         `json:"postbackUrl,omitempty"`
	Pix           chargePix      `json:"pix"`
}

type chargeCustomer struct {
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Document    chargeDocument `json:"document"`
	Phone       string         `json:"phone,omitempty"`
	ExternalRef string         `json:"externalRef"`
}

type chargeDocument struct {
	Number string `json:"number"`
	Type   string `json:"type"`
}

type chargeItem struct {
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Tangible  bool   `json:"tangible"`
}

type chargePix struct {
	ExpiresInDays int `json:"expiresInDays"`
}

// OpenCharge creates a PIX charge and extracts the provider's transaction
// reference from the response.
func (g *HTTPGateway) OpenCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	payload := chargePayload{
		Amount:        req.AmountMinorUnits,
		PaymentMethod: "PIX",
		Customer: chargeCustomer{
			Name:        req.Customer.Name,
			Email:       req.Customer.Email,
			Document:    chargeDocument{Number: req.Customer.Document, Type: "CPF"},
			Phone:       req.Customer.Phone,
			ExternalRef: req.ExternalReference,
		},
		Items: []chargeItem{{
			Title:     "Wallet top-up",
			UnitPrice: req.AmountMinorUnits,
			Quantity:  1,
			Tangible:  false,
		}},
		Traceable:   true,
		PostbackURL: req.PostbackURL,
		Pix:         chargePix{ExpiresInDays: 1},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Charge{}, &Error{Err: fmt.Errorf("encode charge: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+chargePath, bytes.NewReader(body))
	if err != nil {
		return Charge{}, &Error{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth("x", g.secret)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Charge{}, &Error{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Charge{}, &Error{Err: fmt.Errorf("read provider response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Charge{}, &Error{HTTPStatus: resp.StatusCode, Body: raw}
	}

	ref := referenceFromResponse(raw)
	if ref == "" {
		return Charge{}, &Error{HTTPStatus: resp.StatusCode, Body: raw, Err: fmt.Errorf("provider response carries no charge reference")}
	}

	return Charge{ProviderReference: ref, Raw: raw}, nil
}

// referenceFromResponse probes the identifier fields the provider has been
// observed to use.
func referenceFromResponse(raw []byte) string {
	var parsed struct {
		ID            any    `json:"id"`
		TransactionID any    `json:"transactionId"`
		UUID          string `json:"uuid"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ""
	}
	if ref := stringifyReference(parsed.ID); ref != "" {
		return ref
	}
	if ref := stringifyReference(parsed.TransactionID); ref != "" {
		return ref
	}
	return parsed.UUID
}

func stringifyReference(v any) string {
	switch ref := v.(type) {
	case string:
		return ref
	case float64:
		return fmt.Sprintf("%.0f", ref)
	default:
		return ""
	}
}

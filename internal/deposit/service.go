package deposit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pixa-pay/pixa_pay/internal/gateway"
	"github.com/pixa-pay/pixa_pay/internal/ledger"
	"github.com/pixa-pay/pixa_pay/internal/logging"
	"github.com/pixa-pay/pixa_pay/internal/metrics"
	"github.com/pixa-pay/pixa_pay/internal/notification"
)

var (
	// ErrInvalidAmount rejects deposit amounts below the configured minimum.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrPersistence marks a store failure after the remote charge succeeded.
	// No compensating cancellation of the remote charge is attempted.
	ErrPersistence = errors.New("persistence failure")

	// ErrReconciliation marks a store failure while applying a notification.
	// The webhook source must treat the delivery as failed and retry.
	ErrReconciliation = errors.New("reconciliation failure")
)

const (
	externalRefPrefix = "user-"

	defaultMinDeposit = 100
)

// ExternalReference renders the externally visible customer reference that
// embeds the local account id, so a notification can be matched back to the
// account even without a provider reference.
func ExternalReference(accountID string) string {
	return externalRefPrefix + accountID
}

// ParseExternalReference recovers an account id from an external reference.
func ParseExternalReference(ref string) (string, bool) {
	if !strings.HasPrefix(ref, externalRefPrefix) {
		return "", false
	}
	id := ref[len(externalRefPrefix):]
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// Service coordinates deposit initiation and webhook reconciliation against
// the ledger store and the provider gateway. It holds no state between calls.
type Service struct {
	store       ledger.Store
	gateway     gateway.Gateway
	notifier    notification.Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	minDeposit  int64
	postbackURL string
}

// Options tunes optional service collaborators.
type Options struct {
	Notifier             notification.Notifier
	Metrics              *metrics.Metrics
	Logger               *slog.Logger
	MinDepositMinorUnits int64
	PostbackURL          string
}

// NewService builds the deposit service. A nil gateway falls back to the
// static stub.
func NewService(store ledger.Store, gw gateway.Gateway, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if gw == nil {
		gw = gateway.StaticGateway{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	minDeposit := opts.MinDepositMinorUnits
	if minDeposit <= 0 {
		minDeposit = defaultMinDeposit
	}
	return &Service{
		store:       store,
		gateway:     gw,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      logger,
		minDeposit:  minDeposit,
		postbackURL: opts.PostbackURL,
	}, nil
}

// InitiateInput captures a provider-backed deposit request. Customer details
// come from the identity layer and are forwarded to the provider unchanged.
type InitiateInput struct {
	AccountID        string
	AmountMinorUnits int64
	Customer         gateway.Customer
}

// InitiateResult is the outcome of a successful initiation. ProviderPayload
// carries the raw provider response (QR code and payment instructions).
type InitiateResult struct {
	TransactionID     string
	ProviderReference string
	Status            ledger.Status
	ProviderPayload   json.RawMessage
}

// Initiate validates the amount, opens a charge with the provider and records
// a PENDING transaction keyed by the returned charge reference. The balance is
// only credited later, when a completion notification arrives.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (InitiateResult, error) {
	if input.AmountMinorUnits < s.minDeposit {
		s.metrics.ObserveInitiation("invalid")
		return InitiateResult{}, fmt.Errorf("%w: minimum is %d minor units", ErrInvalidAmount, s.minDeposit)
	}

	account, err := s.store.GetAccount(ctx, input.AccountID)
	if err != nil {
		s.metrics.ObserveInitiation("invalid")
		return InitiateResult{}, err
	}

	charge, err := s.gateway.OpenCharge(ctx, gateway.ChargeRequest{
		AmountMinorUnits:  input.AmountMinorUnits,
		Customer:          input.Customer,
		ExternalReference: ExternalReference(account.ID),
		PostbackURL:       s.postbackURL,
	})
	if err != nil {
		s.metrics.ObserveInitiation("gateway_error")
		return InitiateResult{}, err
	}

	tx, err := s.store.CreatePending(ctx, account.ID, ledger.KindDeposit, input.AmountMinorUnits, charge.ProviderReference, "PIX deposit awaiting payment")
	if err != nil {
		// The remote charge exists but the local row does not; the fallback
		// reconciliation path recovers the credit when the charge completes.
		s.logger.Error("pending deposit not recorded", "provider_reference", charge.ProviderReference, "error", err)
		s.metrics.ObserveInitiation("store_error")
		return InitiateResult{}, fmt.Errorf("%w: record pending deposit: %v", ErrPersistence, err)
	}

	s.metrics.ObserveInitiation("created")
	return InitiateResult{
		TransactionID:     tx.ID,
		ProviderReference: charge.ProviderReference,
		Status:            tx.Status,
		ProviderPayload:   charge.Raw,
	}, nil
}

// Provision creates the ledger account backing a user.
func (s *Service) Provision(ctx context.Context, accountID string) (ledger.Account, error) {
	return s.store.CreateAccount(ctx, accountID)
}

// DirectCredit applies an unconditional deposit, recording an
// already-COMPLETED transaction. Used by the mock top-up endpoint.
func (s *Service) DirectCredit(ctx context.Context, accountID string, amount int64, description string) (ledger.Transaction, int64, error) {
	if amount <= 0 {
		return ledger.Transaction{}, 0, ErrInvalidAmount
	}
	return s.store.CreditAccount(ctx, accountID, ledger.KindDeposit, amount, "", description)
}

// GrantBonus credits a bonus transaction, e.g. the welcome bonus at
// registration.
func (s *Service) GrantBonus(ctx context.Context, accountID string, amount int64, description string) (ledger.Transaction, int64, error) {
	if amount <= 0 {
		return ledger.Transaction{}, 0, ErrInvalidAmount
	}
	return s.store.CreditAccount(ctx, accountID, ledger.KindBonus, amount, "", description)
}

// Balance reads the current account balance.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.BalanceMinorUnits, nil
}

// History lists the most recent transactions for an account.
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]ledger.Transaction, error) {
	return s.store.ListTransactions(ctx, accountID, limit)
}

package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAccountNotFound indicates the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound indicates no transaction matches the lookup key.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateReference indicates the provider reference is already bound to
	// a transaction, so the write should be treated as already handled.
	ErrDuplicateReference = errors.New("duplicate provider reference")
)

// Kind classifies a transaction.
type Kind string

const (
	KindDeposit Kind = "DEPOSIT"
	KindBonus   Kind = "BONUS"
)

// Status is the internal transaction state. Transitions are one-directional:
// PENDING may move to any terminal state, terminal states never change.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Account holds a user balance in currency minor units. The balance is only
// mutated through SettleFrom and CreditAccount, never read-modify-written by
// callers.
type Account struct {
	ID                string
	BalanceMinorUnits int64
	CreatedAt         time.Time
}

// Transaction is an immutable ledger entry except for its status, which moves
// through the Status state machine.
type Transaction struct {
	ID                string
	AccountID         string
	Kind              Kind
	Status            Status
	AmountMinorUnits  int64
	ProviderReference string // empty when the transaction has no provider charge
	Description       string
	CreatedAt         time.Time
}

// SettleResult reports the outcome of a SettleFrom call.
type SettleResult struct {
	// Applied is true when the compare-and-swap matched and the transition
	// (plus any credit) was committed.
	Applied bool
	// Status is the transaction status as of this call, whether or not the
	// transition applied. Lets callers classify lost races.
	Status Status
	// NewBalance is the account balance after the call when Applied is true
	// and the new status credited the account.
	NewBalance int64
}

// Store is the contract implemented by ledger backends (e.g. Postgres).
//
// SettleFrom and CreditAccount are the only operations that change balances;
// both pair the balance increment with the authorizing transaction write in a
// single atomic unit.
type Store interface {
	CreateAccount(ctx context.Context, id string) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)

	// CreatePending records a PENDING transaction bound to a provider charge.
	// A provider reference collision returns ErrDuplicateReference.
	CreatePending(ctx context.Context, accountID string, kind Kind, amount int64, providerRef, description string) (Transaction, error)

	FindByProviderReference(ctx context.Context, providerRef string) (Transaction, error)
	ListTransactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)

	// SettleFrom atomically moves a transaction from the expected status to the
	// new one. When to is COMPLETED the owning account is credited by the
	// transaction amount inside the same unit of work. A compare-and-swap miss
	// is not an error: Applied is false and Status carries the current state.
	SettleFrom(ctx context.Context, txID string, from, to Status) (SettleResult, error)

	// CreditAccount inserts an already-COMPLETED transaction and increments the
	// account balance in one atomic unit. Used for direct credits, bonuses and
	// the reconciliation fallback path; providerRef may be empty.
	CreditAccount(ctx context.Context, accountID string, kind Kind, amount int64, providerRef, description string) (Transaction, int64, error)
}

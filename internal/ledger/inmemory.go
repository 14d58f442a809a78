package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]*Account
	transactions map[string]*Transaction
	byProvider   map[string]string // provider reference -> transaction id
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests and local development without Postgres.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts:     make(map[string]*Account),
		transactions: make(map[string]*Transaction),
		byProvider:   make(map[string]string),
	}
}

func (s *inMemoryStore) CreateAccount(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, exists := s.accounts[id]; exists {
		return *a, nil
	}
	a := &Account{ID: id, CreatedAt: time.Now().UTC()}
	s.accounts[id] = a
	return *a, nil
}

func (s *inMemoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, exists := s.accounts[id]
	if !exists {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (s *inMemoryStore) CreatePending(_ context.Context, accountID string, kind Kind, amount int64, providerRef, description string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[accountID]; !exists {
		return Transaction{}, ErrAccountNotFound
	}
	if providerRef != "" {
		if _, exists := s.byProvider[providerRef]; exists {
			return Transaction{}, ErrDuplicateReference
		}
	}

	tx := &Transaction{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Kind:              kind,
		Status:            StatusPending,
		AmountMinorUnits:  amount,
		ProviderReference: providerRef,
		Description:       description,
		CreatedAt:         time.Now().UTC(),
	}
	s.transactions[tx.ID] = tx
	if providerRef != "" {
		s.byProvider[providerRef] = tx.ID
	}
	return *tx, nil
}

func (s *inMemoryStore) FindByProviderReference(_ context.Context, providerRef string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txID, exists := s.byProvider[providerRef]
	if providerRef == "" || !exists {
		return Transaction{}, ErrTransactionNotFound
	}
	return *s.transactions[txID], nil
}

func (s *inMemoryStore) ListTransactions(_ context.Context, accountID string, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[accountID]; !exists {
		return nil, ErrAccountNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	var out []Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *inMemoryStore) SettleFrom(_ context.Context, txID string, from, to Status) (SettleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactions[txID]
	if !exists {
		return SettleResult{}, ErrTransactionNotFound
	}
	if tx.Status != from {
		return SettleResult{Applied: false, Status: tx.Status}, nil
	}

	tx.Status = to
	result := SettleResult{Applied: true, Status: to}
	if to == StatusCompleted {
		account, exists := s.accounts[tx.AccountID]
		if !exists {
			tx.Status = from
			return SettleResult{}, ErrAccountNotFound
		}
		account.BalanceMinorUnits += tx.AmountMinorUnits
		result.NewBalance = account.BalanceMinorUnits
	}
	return result, nil
}

func (s *inMemoryStore) CreditAccount(_ context.Context, accountID string, kind Kind, amount int64, providerRef, description string) (Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[accountID]
	if !exists {
		return Transaction{}, 0, ErrAccountNotFound
	}
	if providerRef != "" {
		if _, exists := s.byProvider[providerRef]; exists {
			return Transaction{}, 0, ErrDuplicateReference
		}
	}

	tx := &Transaction{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Kind:              kind,
		Status:            StatusCompleted,
		AmountMinorUnits:  amount,
		ProviderReference: providerRef,
		Description:       description,
		CreatedAt:         time.Now().UTC(),
	}
	s.transactions[tx.ID] = tx
	if providerRef != "" {
		s.byProvider[providerRef] = tx.ID
	}
	account.BalanceMinorUnits += amount
	return *tx, account.BalanceMinorUnits, nil
}

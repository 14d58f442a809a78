package ledger

// SeedBalance is a test helper that sets an account balance directly when
// using the in-memory store.
func SeedBalance(s Store, accountID string, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if a, exists := mem.accounts[accountID]; exists {
			a.BalanceMinorUnits = amount
		}
	}
}

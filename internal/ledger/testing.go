package ledger

// SeedBalance is a test helper that sets the balance for an account when using
// the in-memory ledger, without appending an entry.
func SeedBalance(l Ledger, accountNumber string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[accountNumber] = amount
	}
}

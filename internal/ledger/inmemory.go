package ledger

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

type inMemoryLedger struct {
	mu         sync.RWMutex
	balances   map[string]int64
	entries    map[string][]Transaction
	byClientTx map[string]Transaction
	opts       options
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for development and unit tests.
func NewInMemory(opts ...Option) Ledger {
	return &inMemoryLedger{
		balances:   make(map[string]int64),
		entries:    make(map[string][]Transaction),
		byClientTx: make(map[string]Transaction),
		opts:       buildOptions(opts),
	}
}

func clientTxKey(accountNumber string, typ Type, clientTxID string) string {
	return accountNumber + "|" + string(typ) + "|" + clientTxID
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, accountNumber string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[accountNumber]; !exists {
		l.balances[accountNumber] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, accountNumber string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[accountNumber]
	if !exists {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Post(_ context.Context, p Posting) (Transaction, error) {
	if err := p.validate(); err != nil {
		return Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[p.AccountNumber]
	if !ok {
		return Transaction{}, ErrAccountNotFound
	}

	if p.ClientTxID != "" {
		if existing, exists := l.byClientTx[clientTxKey(p.AccountNumber, p.Type, p.ClientTxID)]; exists {
			return existing, ErrDuplicateTransaction
		}
	}

	switch p.Type {
	case TypeDeposit:
		if balance > math.MaxInt64-p.Amount {
			return Transaction{}, ErrInvalidAmount
		}
		balance += p.Amount
	case TypeWithdrawal:
		if balance < p.Amount {
			return Transaction{}, ErrInsufficientFunds
		}
		balance -= p.Amount
	}

	tx := Transaction{
		ID:            l.opts.node.Generate(),
		AccountNumber: p.AccountNumber,
		Type:          p.Type,
		Memo:          p.Memo,
		Amount:        p.Amount,
		Reference:     p.Reference,
		BalanceAfter:  balance,
		ClientTxID:    p.ClientTxID,
		CreatedAt:     l.opts.now().UTC(),
	}

	l.balances[p.AccountNumber] = balance
	l.entries[p.AccountNumber] = append(l.entries[p.AccountNumber], tx)
	if p.ClientTxID != "" {
		l.byClientTx[clientTxKey(p.AccountNumber, p.Type, p.ClientTxID)] = tx
	}
	return tx, nil
}

func (l *inMemoryLedger) List(_ context.Context, accountNumber string, f Filter) ([]Transaction, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	if _, ok := l.balances[accountNumber]; !ok {
		l.mu.RUnlock()
		return nil, ErrAccountNotFound
	}
	out := make([]Transaction, 0, len(l.entries[accountNumber]))
	for _, tx := range l.entries[accountNumber] {
		if f.matches(tx) {
			out = append(out, tx)
		}
	}
	l.mu.RUnlock()

	sortRecentFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (l *inMemoryLedger) DebitTotal(_ context.Context, accountNumber string, since time.Time) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.balances[accountNumber]; !ok {
		return 0, ErrAccountNotFound
	}
	var total int64
	for _, tx := range l.entries[accountNumber] {
		if tx.Type == TypeWithdrawal && !tx.CreatedAt.Before(since) {
			total += tx.Amount
		}
	}
	return total, nil
}

func (l *inMemoryLedger) DeleteAccount(_ context.Context, accountNumber string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tx := range l.entries[accountNumber] {
		if tx.ClientTxID != "" {
			delete(l.byClientTx, clientTxKey(accountNumber, tx.Type, tx.ClientTxID))
		}
	}
	delete(l.entries, accountNumber)
	delete(l.balances, accountNumber)
	return nil
}

func (l *inMemoryLedger) FindByClientTx(_ context.Context, accountNumber string, typ Type, clientTxID string) (Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.byClientTx[clientTxKey(accountNumber, typ, clientTxID)]
	if !ok || clientTxID == "" {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, nil
}

func (l *inMemoryLedger) Restore(_ context.Context, accountNumber string, balance int64, history []Transaction) error {
	if balance < 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.balances[accountNumber]; !exists {
		l.balances[accountNumber] = balance
	}
	seen := make(map[int64]struct{}, len(l.entries[accountNumber]))
	for _, tx := range l.entries[accountNumber] {
		seen[tx.ID.Int64()] = struct{}{}
	}
	for _, tx := range history {
		if _, dup := seen[tx.ID.Int64()]; dup {
			continue
		}
		tx.AccountNumber = accountNumber
		tx.CreatedAt = tx.CreatedAt.UTC()
		l.entries[accountNumber] = append(l.entries[accountNumber], tx)
		if tx.ClientTxID != "" {
			l.byClientTx[clientTxKey(accountNumber, tx.Type, tx.ClientTxID)] = tx
		}
	}
	return nil
}

func sortRecentFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.After(txs[j].CreatedAt)
		}
		return txs[i].ID > txs[j].ID
	})
}

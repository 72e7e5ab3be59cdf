package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func deposit(acct string, amount int64) Posting {
	return Posting{AccountNumber: acct, Type: TypeDeposit, Memo: "deposit", Amount: amount, Reference: NewReference()}
}

func withdrawal(acct string, amount int64) Posting {
	return Posting{AccountNumber: acct, Type: TypeWithdrawal, Memo: "withdrawal", Amount: amount, Reference: NewReference()}
}

func TestInMemoryLedger_DepositThenWithdraw(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	if err := l.EnsureAccount(ctx, "1234567890"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}

	if _, err := l.Post(ctx, deposit("1234567890", 100_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	tx, err := l.Post(ctx, withdrawal("1234567890", 30_000))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if tx.BalanceAfter != 70_000 {
		t.Fatalf("expected balance after 70000, got %d", tx.BalanceAfter)
	}

	balance, err := l.Balance(ctx, "1234567890")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 70_000 {
		t.Fatalf("expected balance 70000, got %d", balance)
	}

	entries, err := l.List(ctx, "1234567890", Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != TypeWithdrawal || entries[1].Type != TypeDeposit {
		t.Fatalf("expected most recent first, got %s then %s", entries[0].Type, entries[1].Type)
	}
	if len(entries[0].Reference) != 6 {
		t.Fatalf("expected 6-digit reference, got %q", entries[0].Reference)
	}
}

func TestInMemoryLedger_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")

	if _, err := l.Post(ctx, withdrawal("acct", 1_000)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	balance, _ := l.Balance(ctx, "acct")
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
	entries, _ := l.List(ctx, "acct", Filter{})
	if len(entries) != 0 {
		t.Fatalf("expected empty ledger, got %d entries", len(entries))
	}
}

func TestInMemoryLedger_RejectsInvalidPostings(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")

	cases := []struct {
		name string
		p    Posting
		want error
	}{
		{"zero amount", deposit("acct", 0), ErrInvalidAmount},
		{"negative amount", deposit("acct", -5), ErrInvalidAmount},
		{"unknown type", Posting{AccountNumber: "acct", Type: "refund", Amount: 10}, ErrUnknownType},
		{"missing account", deposit("nope", 10), ErrAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.Post(ctx, tc.p); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInMemoryLedger_DuplicateTransaction(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")

	p := deposit("acct", 500)
	p.ClientTxID = "dup"
	first, err := l.Post(ctx, p)
	if err != nil {
		t.Fatalf("initial deposit failed: %v", err)
	}
	replay, err := l.Post(ctx, p)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if replay.ID != first.ID {
		t.Fatalf("expected original transaction on replay")
	}
	balance, _ := l.Balance(ctx, "acct")
	if balance != 500 {
		t.Fatalf("duplicate must not move the balance, got %d", balance)
	}
}

func TestInMemoryLedger_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")
	SeedBalance(l, "acct", 5_000)

	const workers = 20
	const amount = int64(500)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := withdrawal("acct", amount)
			p.ClientTxID = fmt.Sprintf("tx-%d", i)
			if _, err := l.Post(ctx, p); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("withdrawal %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful withdrawals, got %d", succeeded)
	}
	balance, _ := l.Balance(ctx, "acct")
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

func TestInMemoryLedger_ListFiltersByPeriod(t *testing.T) {
	bogota, err := time.LoadLocation("America/Bogota")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	clock := newFakeClock(time.Date(2024, time.December, 15, 12, 0, 0, 0, time.UTC))
	l := NewInMemory(WithClock(clock.Now))
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")

	l.Post(ctx, deposit("acct", 100))
	// 2025-01-01 02:00 UTC is still 2024-12-31 in Bogota.
	clock.Set(time.Date(2025, time.January, 1, 2, 0, 0, 0, time.UTC))
	l.Post(ctx, deposit("acct", 200))
	clock.Set(time.Date(2025, time.February, 3, 15, 0, 0, 0, time.UTC))
	l.Post(ctx, deposit("acct", 300))

	dec, err := l.List(ctx, "acct", Filter{Year: 2024, Month: 12, Location: bogota})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(dec) != 2 {
		t.Fatalf("expected 2 entries in December 2024 (Bogota), got %d", len(dec))
	}

	year, _ := l.List(ctx, "acct", Filter{Year: 2025, Location: bogota})
	if len(year) != 1 || year[0].Amount != 300 {
		t.Fatalf("expected only the February entry for 2025, got %+v", year)
	}

	febAnyYear, _ := l.List(ctx, "acct", Filter{Month: 2})
	if len(febAnyYear) != 1 {
		t.Fatalf("expected month-only filter to match 1 entry, got %d", len(febAnyYear))
	}

	all, _ := l.List(ctx, "acct", Filter{})
	if len(all) != 3 || all[0].Amount != 300 {
		t.Fatalf("expected all entries most recent first, got %+v", all)
	}

	if _, err := l.List(ctx, "acct", Filter{Month: 13}); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected invalid filter, got %v", err)
	}
}

func TestInMemoryLedger_ListLimitAndTieBreak(t *testing.T) {
	clock := newFakeClock(time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))
	l := NewInMemory(WithClock(clock.Now))
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")

	for i := 1; i <= 12; i++ {
		if _, err := l.Post(ctx, deposit("acct", int64(i))); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	recent, err := l.List(ctx, "acct", Filter{Limit: DefaultRecentLimit})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != DefaultRecentLimit {
		t.Fatalf("expected %d entries, got %d", DefaultRecentLimit, len(recent))
	}
	// identical timestamps fall back to id order, newest first
	if recent[0].Amount != 12 || recent[9].Amount != 3 {
		t.Fatalf("unexpected order: first=%d last=%d", recent[0].Amount, recent[9].Amount)
	}
}

func TestInMemoryLedger_DebitTotal(t *testing.T) {
	clock := newFakeClock(time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))
	l := NewInMemory(WithClock(clock.Now))
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")
	SeedBalance(l, "acct", 10_000)

	l.Post(ctx, withdrawal("acct", 1_000))
	clock.Set(time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC))
	l.Post(ctx, withdrawal("acct", 2_000))
	l.Post(ctx, deposit("acct", 5_000))

	total, err := l.DebitTotal(ctx, "acct", time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("debit total: %v", err)
	}
	if total != 2_000 {
		t.Fatalf("expected 2000, got %d", total)
	}
}

func TestInMemoryLedger_DeleteAndRestore(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")
	p := deposit("acct", 700)
	p.ClientTxID = "c-1"
	tx, _ := l.Post(ctx, p)

	history, _ := l.List(ctx, "acct", Filter{})
	if err := l.DeleteAccount(ctx, "acct"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := l.Balance(ctx, "acct"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account gone, got %v", err)
	}

	if err := l.Restore(ctx, "acct", 700, history); err != nil {
		t.Fatalf("restore: %v", err)
	}
	// restoring twice keeps a single copy of each entry
	if err := l.Restore(ctx, "acct", 700, history); err != nil {
		t.Fatalf("restore again: %v", err)
	}
	entries, _ := l.List(ctx, "acct", Filter{})
	if len(entries) != 1 || entries[0].ID != tx.ID {
		t.Fatalf("unexpected restored history: %+v", entries)
	}
	if _, err := l.Post(ctx, p); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("restored client tx id should still be deduplicated, got %v", err)
	}
}

func TestInMemoryLedger_RestoreKeepsLiveBalance(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct")
	if _, err := l.Post(ctx, deposit("acct", 700)); err != nil {
		t.Fatalf("post: %v", err)
	}
	older, _ := l.List(ctx, "acct", Filter{})
	if _, err := l.Post(ctx, deposit("acct", 300)); err != nil {
		t.Fatalf("post: %v", err)
	}

	if err := l.Restore(ctx, "acct", 700, older); err != nil {
		t.Fatalf("restore: %v", err)
	}
	bal, _ := l.Balance(ctx, "acct")
	if bal != 1_000 {
		t.Fatalf("live balance replaced: got %d", bal)
	}
	entries, _ := l.List(ctx, "acct", Filter{})
	if len(entries) != 2 || entries[0].BalanceAfter != bal {
		t.Fatalf("history out of step with balance: %+v", entries)
	}
}

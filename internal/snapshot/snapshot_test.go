package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/ledger"
)

var testSettings = Settings{
	MaxTransactionAmount:  10_000_000,
	DailyTransactionLimit: 50_000_000,
	SessionWindow:         "30m0s",
	Timezone:              "America/Bogota",
}

type store struct {
	repo     account.Repository
	led      ledger.Ledger
	accounts *account.Service
}

func newStore() store {
	repo := account.NewMemoryRepository()
	led := ledger.NewInMemory()
	return store{repo: repo, led: led, accounts: account.NewService(repo, led, account.WithHashCost(bcrypt.MinCost))}
}

func populated(t *testing.T) store {
	t.Helper()
	s := newStore()
	ctx := context.Background()
	for _, id := range []string{"12345678", "87654321"} {
		a, err := s.accounts.Register(ctx, account.RegisterInput{
			IDType: "CC", IDNumber: id, FirstName: "Ana", LastName: "Gomez",
			Email: id + "@example.com", Password: "secret123",
		})
		require.NoError(t, err)
		_, err = s.led.Post(ctx, ledger.Posting{AccountNumber: a.AccountNumber, Type: ledger.TypeDeposit, Amount: 100_000, Memo: "Electronic channel deposit", Reference: "111111"})
		require.NoError(t, err)
		_, err = s.led.Post(ctx, ledger.Posting{AccountNumber: a.AccountNumber, Type: ledger.TypeWithdrawal, Amount: 30_000, Memo: "Cash withdrawal", Reference: "222222", ClientTxID: "w-" + id})
		require.NoError(t, err)
	}
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := populated(t)
	snap, err := Export(context.Background(), src.repo, src.led, testSettings, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, snap.Users, 2)
	require.Len(t, snap.Transactions, 4)
	assert.Equal(t, ledger.TypeDeposit, snap.Transactions[0].Type, "history is exported oldest first")
	assert.Equal(t, int64(70_000), snap.Users[0].Balance)

	data, err := Encode(snap)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestImportIntoEmptyStore(t *testing.T) {
	src := populated(t)
	ctx := context.Background()
	snap, err := Export(ctx, src.repo, src.led, testSettings, time.Now())
	require.NoError(t, err)

	dst := newStore()
	stats, err := Import(ctx, dst.repo, dst.led, snap)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Accounts: 2, Transactions: 4}, stats)

	for _, u := range snap.Users {
		balance, err := dst.led.Balance(ctx, u.AccountNumber)
		require.NoError(t, err)
		assert.Equal(t, u.Balance, balance)
	}
	again, err := Export(ctx, dst.repo, dst.led, testSettings, snap.LastUpdated)
	require.NoError(t, err)
	assert.Equal(t, snap.Users, again.Users)
	assert.Equal(t, snap.Transactions, again.Transactions)

	// credentials survive the move
	_, err = dst.accounts.Authenticate(ctx, "CC", "12345678", "secret123")
	assert.NoError(t, err)

	// replaying a client tx id after import is recognised as a duplicate
	_, err = dst.led.Post(ctx, ledger.Posting{AccountNumber: snap.Users[0].AccountNumber, Type: ledger.TypeWithdrawal, Amount: 30_000, ClientTxID: "w-12345678"})
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
}

func TestImportTwiceIsIdempotent(t *testing.T) {
	src := populated(t)
	ctx := context.Background()
	snap, err := Export(ctx, src.repo, src.led, testSettings, time.Now())
	require.NoError(t, err)

	dst := newStore()
	_, err = Import(ctx, dst.repo, dst.led, snap)
	require.NoError(t, err)
	_, err = Import(ctx, dst.repo, dst.led, snap)
	require.NoError(t, err)

	accounts, err := dst.repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
	history, err := dst.led.List(ctx, snap.Users[0].AccountNumber, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestImportIntoNonEmptyStoreKeepsLiveBalance(t *testing.T) {
	s := populated(t)
	ctx := context.Background()
	snap, err := Export(ctx, s.repo, s.led, testSettings, time.Now())
	require.NoError(t, err)

	number := snap.Users[0].AccountNumber
	_, err = s.led.Post(ctx, ledger.Posting{AccountNumber: number, Type: ledger.TypeDeposit, Amount: 400_000, Memo: "Electronic channel deposit", Reference: "333333"})
	require.NoError(t, err)

	_, err = Import(ctx, s.repo, s.led, snap)
	require.NoError(t, err)

	balance, err := s.led.Balance(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, int64(470_000), balance)
	history, err := s.led.List(ctx, number, ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, balance, history[0].BalanceAfter)
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	cases := map[string]string{
		"not json":           `{"users": [`,
		"missing users":      `{"transactions": [], "settings": {}}`,
		"users not an array": `{"users": {"a": 1}}`,
		"orphan transaction": `{"users": [], "transactions": [{"id": "1", "account_number": "1234567890", "type": "deposit", "amount": 10}]}`,
		"bad type":           `{"users": [{"id_type": "CC", "id_number": "1", "account_number": "1"}], "transactions": [{"id": "1", "account_number": "1", "type": "refund", "amount": 10}]}`,
		"negative balance":   `{"users": [{"id_type": "CC", "id_number": "1", "account_number": "1", "balance": -5}]}`,
		"future version":     `{"meta": {"version": 99}, "users": []}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input))
			assert.ErrorIs(t, err, ErrStoreCorruption)
		})
	}
}

func TestDecodeMinimalDocument(t *testing.T) {
	s, err := Decode([]byte(`{"users": []}`))
	require.NoError(t, err)
	assert.Empty(t, s.Users)
	assert.NotNil(t, s.Transactions)
}

func TestSaveAndLoadFile(t *testing.T) {
	src := populated(t)
	snap, err := Export(context.Background(), src.repo, src.led, testSettings, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, SaveFile(path, snap))
	require.NoError(t, SaveFile(path, snap), "overwriting an existing file")

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

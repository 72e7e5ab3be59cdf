// Package snapshot exports and imports the whole bank store as one JSON
// document, used for backups and for moving data between backends.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/ledger"
)

// ErrStoreCorruption means a snapshot could not be parsed or has the wrong shape.
var ErrStoreCorruption = errors.New("incorrect database structure")

// Version is the snapshot format written by Encode.
const Version = 1

type Meta struct {
	Version  int    `json:"version"`
	Bank     string `json:"bank"`
	Currency string `json:"currency"`
}

// User is an account record including its credential hash and balance.
type User struct {
	ID            int64     `json:"id"`
	IDType        string    `json:"id_type"`
	IDNumber      string    `json:"id_number"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Gender        string    `json:"gender,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Email         string    `json:"email"`
	Address       string    `json:"address,omitempty"`
	City          string    `json:"city,omitempty"`
	PasswordHash  []byte    `json:"password_hash"`
	AccountNumber string    `json:"account_number"`
	Balance       int64     `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccessAt  time.Time `json:"last_access_at"`
}

type Settings struct {
	MaxTransactionAmount  int64  `json:"max_transaction_amount"`
	DailyTransactionLimit int64  `json:"daily_transaction_limit"`
	SessionWindow         string `json:"session_window"`
	Timezone              string `json:"timezone"`
}

// Snapshot is the full store. Transactions are ordered oldest first per account.
type Snapshot struct {
	Meta         Meta                 `json:"meta"`
	Users        []User               `json:"users"`
	Transactions []ledger.Transaction `json:"transactions"`
	Settings     Settings             `json:"settings"`
	LastUpdated  time.Time            `json:"lastUpdated"`
}

// Export reads every account with its balance and history.
func Export(ctx context.Context, repo account.Repository, led ledger.Ledger, settings Settings, now time.Time) (Snapshot, error) {
	accounts, err := repo.List(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list accounts: %w", err)
	}
	snap := Snapshot{
		Meta:         Meta{Version: Version, Bank: "MockBank", Currency: "COP"},
		Users:        make([]User, 0, len(accounts)),
		Transactions: []ledger.Transaction{},
		Settings:     settings,
		LastUpdated:  now.UTC(),
	}
	for _, a := range accounts {
		balance, err := led.Balance(ctx, a.AccountNumber)
		if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
			return Snapshot{}, fmt.Errorf("balance %s: %w", a.AccountNumber, err)
		}
		history, err := led.List(ctx, a.AccountNumber, ledger.Filter{})
		if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
			return Snapshot{}, fmt.Errorf("history %s: %w", a.AccountNumber, err)
		}
		for i := len(history) - 1; i >= 0; i-- {
			snap.Transactions = append(snap.Transactions, normalise(history[i]))
		}
		snap.Users = append(snap.Users, fromAccount(a, balance))
	}
	return snap, nil
}

// ImportStats reports what Import did.
type ImportStats struct {
	Accounts     int
	Skipped      int
	Transactions int
}

// Import writes a snapshot into the stores. Accounts that already exist are
// left untouched; their history is merged by transaction id.
func Import(ctx context.Context, repo account.Repository, led ledger.Ledger, snap Snapshot) (ImportStats, error) {
	if err := snap.validate(); err != nil {
		return ImportStats{}, err
	}
	byAccount := make(map[string][]ledger.Transaction, len(snap.Users))
	for _, tx := range snap.Transactions {
		byAccount[tx.AccountNumber] = append(byAccount[tx.AccountNumber], tx)
	}

	var stats ImportStats
	for _, u := range snap.Users {
		if err := repo.Restore(ctx, u.toAccount()); err != nil {
			return stats, fmt.Errorf("restore account %s: %w", u.AccountNumber, err)
		}
		stored, err := repo.FindByAccountNumber(ctx, u.AccountNumber)
		if errors.Is(err, account.ErrNotFound) {
			// identification already registered under another account number
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, err
		}
		if stored.IDType != u.IDType || stored.IDNumber != u.IDNumber {
			stats.Skipped++
			continue
		}
		history := byAccount[u.AccountNumber]
		if err := led.Restore(ctx, u.AccountNumber, u.Balance, history); err != nil {
			return stats, fmt.Errorf("restore ledger %s: %w", u.AccountNumber, err)
		}
		stats.Accounts++
		stats.Transactions += len(history)
	}
	return stats, nil
}

func (s Snapshot) validate() error {
	known := make(map[string]struct{}, len(s.Users))
	for i, u := range s.Users {
		if u.AccountNumber == "" || u.IDType == "" || u.IDNumber == "" {
			return fmt.Errorf("%w: user %d lacks identification or account number", ErrStoreCorruption, i)
		}
		if u.Balance < 0 {
			return fmt.Errorf("%w: negative balance for %s", ErrStoreCorruption, u.AccountNumber)
		}
		if _, dup := known[u.AccountNumber]; dup {
			return fmt.Errorf("%w: account number %s appears twice", ErrStoreCorruption, u.AccountNumber)
		}
		known[u.AccountNumber] = struct{}{}
	}
	for _, tx := range s.Transactions {
		if _, ok := known[tx.AccountNumber]; !ok {
			return fmt.Errorf("%w: transaction %s references unknown account %s", ErrStoreCorruption, tx.ID, tx.AccountNumber)
		}
		if !tx.Type.Valid() || tx.Amount <= 0 {
			return fmt.Errorf("%w: transaction %s is malformed", ErrStoreCorruption, tx.ID)
		}
	}
	return nil
}

// Encode serialises a snapshot as indented JSON.
func Encode(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Decode parses a snapshot. Unparseable input or a document without a users
// array fails with ErrStoreCorruption.
func Decode(data []byte) (Snapshot, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrStoreCorruption, err)
	}
	users, ok := shape["users"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(users), []byte("[")) {
		return Snapshot{}, fmt.Errorf("%w: missing users", ErrStoreCorruption)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrStoreCorruption, err)
	}
	if s.Transactions == nil {
		s.Transactions = []ledger.Transaction{}
	}
	if s.Meta.Version > Version {
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrStoreCorruption, s.Meta.Version)
	}
	if err := s.validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// SaveFile writes the snapshot atomically: a temp file in the same directory
// is renamed over path once fully written.
func SaveFile(path string, s Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() // nolint:errcheck
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() // nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads and decodes a snapshot file.
func LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return Decode(data)
}

func fromAccount(a account.Account, balance int64) User {
	return User{
		ID:            a.ID,
		IDType:        a.IDType,
		IDNumber:      a.IDNumber,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Gender:        a.Gender,
		Phone:         a.Phone,
		Email:         a.Email,
		Address:       a.Address,
		City:          a.City,
		PasswordHash:  a.PasswordHash,
		AccountNumber: a.AccountNumber,
		Balance:       balance,
		CreatedAt:     a.CreatedAt.UTC(),
		LastAccessAt:  a.LastAccessAt.UTC(),
	}
}

func (u User) toAccount() account.Account {
	return account.Account{
		ID:            u.ID,
		IDType:        u.IDType,
		IDNumber:      u.IDNumber,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Gender:        u.Gender,
		Phone:         u.Phone,
		Email:         u.Email,
		Address:       u.Address,
		City:          u.City,
		PasswordHash:  u.PasswordHash,
		AccountNumber: u.AccountNumber,
		CreatedAt:     u.CreatedAt,
		LastAccessAt:  u.LastAccessAt,
	}
}

func normalise(tx ledger.Transaction) ledger.Transaction {
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx
}

// Package seed bootstraps a store with a fixed set of customer accounts.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/ledger"
)

const openingMemo = "Opening deposit"

//go:embed default.yaml
var defaultSeed []byte

// Account is one seed customer. OpeningBalance is credited once as a deposit.
type Account struct {
	IDType         string `yaml:"id_type"`
	IDNumber       string `yaml:"id_number"`
	FirstName      string `yaml:"first_name"`
	LastName       string `yaml:"last_name"`
	Email          string `yaml:"email"`
	Phone          string `yaml:"phone"`
	City           string `yaml:"city"`
	Password       string `yaml:"password"`
	OpeningBalance int64  `yaml:"opening_balance"`
}

type Seed struct {
	Accounts []Account `yaml:"accounts"`
}

// Result counts what EnsureInitialStore changed.
type Result struct {
	Created  int
	Existing int
	Deposits int
}

// Decode reads a YAML seed document.
func Decode(r io.Reader) (Seed, error) {
	var s Seed
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return s, nil
}

// LoadFile reads a YAML seed file.
func LoadFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Default returns the built-in demo seed.
func Default() Seed {
	s, err := Decode(bytes.NewReader(defaultSeed))
	if err != nil {
		panic(err)
	}
	return s
}

// ClientTxID identifies the opening deposit of a seed account.
func ClientTxID(idType, idNumber string) string {
	return "seed:" + idType + ":" + idNumber
}

// EnsureInitialStore creates the seed accounts that do not exist yet and
// credits their opening deposits. Running it again changes nothing.
func EnsureInitialStore(ctx context.Context, accounts *account.Service, led ledger.Ledger, s Seed, logger *slog.Logger) (Result, error) {
	var res Result
	for _, sa := range s.Accounts {
		a, err := accounts.Register(ctx, account.RegisterInput{
			IDType:    sa.IDType,
			IDNumber:  sa.IDNumber,
			FirstName: sa.FirstName,
			LastName:  sa.LastName,
			Email:     sa.Email,
			Phone:     sa.Phone,
			City:      sa.City,
			Password:  sa.Password,
		})
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, account.ErrDuplicateAccount):
			res.Existing++
			if a, err = accounts.Lookup(ctx, sa.IDType, sa.IDNumber); err != nil {
				return res, fmt.Errorf("lookup %s %s: %w", sa.IDType, sa.IDNumber, err)
			}
		default:
			return res, fmt.Errorf("seed %s %s: %w", sa.IDType, sa.IDNumber, err)
		}

		if sa.OpeningBalance <= 0 {
			continue
		}
		_, err = led.Post(ctx, ledger.Posting{
			AccountNumber: a.AccountNumber,
			Type:          ledger.TypeDeposit,
			Memo:          openingMemo,
			Amount:        sa.OpeningBalance,
			Reference:     ledger.NewReference(),
			ClientTxID:    ClientTxID(a.IDType, a.IDNumber),
		})
		switch {
		case err == nil:
			res.Deposits++
		case errors.Is(err, ledger.ErrDuplicateTransaction):
		default:
			return res, fmt.Errorf("opening deposit %s: %w", a.AccountNumber, err)
		}
	}
	if logger != nil {
		logger.Info("seed applied",
			slog.Int("created", res.Created),
			slog.Int("existing", res.Existing),
			slog.Int("deposits", res.Deposits),
		)
	}
	return res, nil
}

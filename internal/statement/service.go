// Package statement builds the read-only views of an account: recent
// activity, period statements (JSON and PDF) and the account certificate.
package statement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/ledger"
)

// ErrBusy means every PDF render slot stayed taken past the acquisition timeout.
var ErrBusy = errors.New("statement renderer is busy, try again")

// AccountReader loads an account with its balance.
type AccountReader interface {
	Get(ctx context.Context, accountNumber string) (account.Account, error)
}

// Totals summarises the entries of a statement.
type Totals struct {
	Credits int64 `json:"credits"`
	Debits  int64 `json:"debits"`
	Count   int   `json:"count"`
}

// Statement is the filtered history of one account. Zero Year or Month
// means that part of the period is unfiltered.
type Statement struct {
	AccountNumber  string               `json:"account_number"`
	Holder         string               `json:"holder"`
	Year           int                  `json:"year,omitempty"`
	Month          int                  `json:"month,omitempty"`
	Transactions   []ledger.Transaction `json:"transactions"`
	Totals         Totals               `json:"totals"`
	AvailableYears []int                `json:"available_years"`
	Balance        int64                `json:"balance"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// Certificate attests that an account exists and who holds it.
type Certificate struct {
	Holder        string    `json:"holder"`
	IDType        string    `json:"id_type"`
	IDNumber      string    `json:"id_number"`
	AccountNumber string    `json:"account_number"`
	OpenedAt      time.Time `json:"opened_at"`
	Balance       int64     `json:"balance"`
	IssuedAt      time.Time `json:"issued_at"`
	Text          string    `json:"text"`
}

type Service struct {
	ledger   ledger.Ledger
	accounts AccountReader
	loc      *time.Location
	now      func() time.Time
	renders  *semaphore.Weighted
	wait     time.Duration
}

// Option customises a Service.
type Option func(*Service)

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithRenderLimit bounds concurrent PDF renders and how long a caller waits for a slot.
func WithRenderLimit(n int64, wait time.Duration) Option {
	return func(s *Service) {
		if n > 0 {
			s.renders = semaphore.NewWeighted(n)
		}
		s.wait = wait
	}
}

func NewService(led ledger.Ledger, accounts AccountReader, opts ...Option) *Service {
	s := &Service{
		ledger:   led,
		accounts: accounts,
		loc:      time.UTC,
		now:      time.Now,
		renders:  semaphore.NewWeighted(4),
		wait:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Recent returns the latest entries, most recent first.
func (s *Service) Recent(ctx context.Context, accountNumber string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = ledger.DefaultRecentLimit
	}
	return s.ledger.List(ctx, accountNumber, ledger.Filter{Limit: limit, Location: s.loc})
}

// Statement returns the entries in the period along with totals and the
// years that can be selected (current year down to the oldest entry).
func (s *Service) Statement(ctx context.Context, accountNumber string, year, month int) (Statement, error) {
	a, err := s.accounts.Get(ctx, accountNumber)
	if err != nil {
		return Statement{}, err
	}
	all, err := s.ledger.List(ctx, accountNumber, ledger.Filter{Location: s.loc})
	if err != nil {
		return Statement{}, err
	}
	txs := all
	if year != 0 || month != 0 {
		txs, err = s.ledger.List(ctx, accountNumber, ledger.Filter{Year: year, Month: month, Location: s.loc})
		if err != nil {
			return Statement{}, err
		}
	}

	now := s.now().In(s.loc)
	st := Statement{
		AccountNumber:  a.AccountNumber,
		Holder:         a.FullName(),
		Year:           year,
		Month:          month,
		Transactions:   txs,
		AvailableYears: availableYears(all, now, s.loc),
		Balance:        a.Balance,
		GeneratedAt:    now,
	}
	for _, tx := range txs {
		st.Totals.Count++
		switch tx.Type {
		case ledger.TypeDeposit:
			st.Totals.Credits += tx.Amount
		case ledger.TypeWithdrawal:
			st.Totals.Debits += tx.Amount
		}
	}
	return st, nil
}

func availableYears(txs []ledger.Transaction, now time.Time, loc *time.Location) []int {
	oldest := now.Year()
	for _, tx := range txs {
		if y := tx.CreatedAt.In(loc).Year(); y < oldest {
			oldest = y
		}
	}
	years := make([]int, 0, now.Year()-oldest+1)
	for y := now.Year(); y >= oldest; y-- {
		years = append(years, y)
	}
	return years
}

// Certificate returns the account certificate issued now.
func (s *Service) Certificate(ctx context.Context, accountNumber string) (Certificate, error) {
	a, err := s.accounts.Get(ctx, accountNumber)
	if err != nil {
		return Certificate{}, err
	}
	issued := s.now().In(s.loc)
	opened := a.CreatedAt.In(s.loc)
	return Certificate{
		Holder:        a.FullName(),
		IDType:        a.IDType,
		IDNumber:      a.IDNumber,
		AccountNumber: a.AccountNumber,
		OpenedAt:      opened,
		Balance:       a.Balance,
		IssuedAt:      issued,
		Text: fmt.Sprintf("MockBank certifies that %s, identified with %s %s, holds savings account number %s, opened on %s.",
			a.FullName(), a.IDType, a.IDNumber, a.AccountNumber, opened.Format(dateLayout)),
	}, nil
}

const dateLayout = "January 2, 2006"

// History lists entries for an optional period, most recent first. Limit 0
// returns every matching entry.
func (s *Service) History(ctx context.Context, accountNumber string, year, month, limit int) ([]ledger.Transaction, error) {
	return s.ledger.List(ctx, accountNumber, ledger.Filter{Year: year, Month: month, Limit: limit, Location: s.loc})
}

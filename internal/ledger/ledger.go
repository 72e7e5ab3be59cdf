package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrInsufficientFunds occurs when the account lacks available balance
	// to cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidAmount rejects zero, negative or overflowing amounts.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	ErrUnknownType     = errors.New("unknown transaction type")
	ErrAccountNotFound = errors.New("ledger account not found")
	ErrInvalidFilter   = errors.New("invalid period filter")

	// ErrTransactionNotFound is returned by FindByClientTx when nothing matches.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// DefaultRecentLimit is the number of entries shown by "recent activity" views.
const DefaultRecentLimit = 10

// Type classifies a transaction by the direction of the balance change.
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
)

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	return t == TypeDeposit || t == TypeWithdrawal
}

// Transaction is an immutable ledger entry. Bill payments are withdrawals
// carrying a descriptive memo.
type Transaction struct {
	ID            snowflake.ID `json:"id"`
	AccountNumber string       `json:"account_number"`
	Type          Type         `json:"type"`
	Memo          string       `json:"memo"`
	Amount        int64        `json:"amount"`
	Reference     string       `json:"reference"`
	BalanceAfter  int64        `json:"balance_after"`
	ClientTxID    string       `json:"client_tx_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Posting is a request to mutate a balance and append the matching entry.
type Posting struct {
	AccountNumber string
	Type          Type
	Memo          string
	Amount        int64
	Reference     string
	ClientTxID    string
}

func (p Posting) validate() error {
	if p.AccountNumber == "" {
		return ErrAccountNotFound
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}
	if p.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Filter narrows a listing. Zero Year and Month select every period; Limit 0
// returns the full history.
type Filter struct {
	Year     int
	Month    int
	Since    time.Time
	Limit    int
	Location *time.Location
}

func (f Filter) validate() error {
	if f.Month < 0 || f.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidFilter, f.Month)
	}
	if f.Year < 0 || f.Limit < 0 {
		return ErrInvalidFilter
	}
	return nil
}

func (f Filter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

func (f Filter) matches(tx Transaction) bool {
	if !f.Since.IsZero() && tx.CreatedAt.Before(f.Since) {
		return false
	}
	local := tx.CreatedAt.In(f.location())
	if f.Year > 0 && local.Year() != f.Year {
		return false
	}
	if f.Month > 0 && int(local.Month()) != f.Month {
		return false
	}
	return true
}

// Ledger defines the contract implemented by ledger backends.
type Ledger interface {
	EnsureAccount(ctx context.Context, accountNumber string) error
	Balance(ctx context.Context, accountNumber string) (int64, error)
	// Post is the single commit point for a balance operation: the funds
	// check, balance mutation and entry append either all happen or none do.
	Post(ctx context.Context, p Posting) (Transaction, error)
	// List returns entries most-recent-first, ties broken by id.
	List(ctx context.Context, accountNumber string, f Filter) ([]Transaction, error)
	// FindByClientTx returns the entry committed under a client transaction id.
	FindByClientTx(ctx context.Context, accountNumber string, typ Type, clientTxID string) (Transaction, error)
	DebitTotal(ctx context.Context, accountNumber string, since time.Time) (int64, error)
	DeleteAccount(ctx context.Context, accountNumber string) error
	// Restore loads history for snapshot import. The balance is only applied
	// when the account has none yet; existing balances are kept.
	Restore(ctx context.Context, accountNumber string, balance int64, history []Transaction) error
}

// NewReference returns a 6-digit operation reference. Collisions are not checked.
func NewReference() string {
	return fmt.Sprintf("%06d", 100000+rand.IntN(900000))
}

type options struct {
	node *snowflake.Node
	now  func() time.Time
}

// Option customises a ledger backend.
type Option func(*options)

// WithNode sets the snowflake node used to mint transaction ids.
func WithNode(node *snowflake.Node) Option {
	return func(o *options) {
		if node != nil {
			o.node = node
		}
	}
}

// WithClock overrides the clock used to timestamp entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.node == nil {
		// node 0 is always within range
		o.node, _ = snowflake.NewNode(0)
	}
	return o
}

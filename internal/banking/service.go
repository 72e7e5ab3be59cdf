// Package banking implements the balance operations available to an
// authenticated customer: deposits, cash withdrawals and utility bill payments.
package banking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mockbank/mockbank/internal/ledger"
	"github.com/mockbank/mockbank/internal/lock"
	"github.com/mockbank/mockbank/internal/notification"
)

var (
	// ErrLimitExceeded rejects operations above the per-transaction or daily limit.
	ErrLimitExceeded = errors.New("transaction limit exceeded")
	// ErrInvalidService rejects a bill payment without a payee service.
	ErrInvalidService = errors.New("invalid bill service")
)

const (
	memoDeposit     = "Electronic channel deposit"
	memoWithdrawal  = "Cash withdrawal"
	memoBillPayment = "Utility payment - "
)

// Limits bounds single operations and the daily debit volume of an account.
// Zero disables a limit.
type Limits struct {
	MaxTransaction int64
	DailyDebit     int64
}

// Request identifies who is operating. SessionID is refreshed with the new
// balance; ClientTxID makes retried submits idempotent.
type Request struct {
	AccountNumber string
	SessionID     string
	ClientTxID    string
}

// Result is the outcome of a committed (or replayed) operation.
type Result struct {
	Transaction ledger.Transaction `json:"transaction"`
	Balance     int64              `json:"balance"`
	Replayed    bool               `json:"replayed"`
}

// BalanceRefresher updates the balance cached on a session.
type BalanceRefresher interface {
	UpdateBalance(ctx context.Context, sessionID string, balance int64) error
}

// Service runs balance operations against the ledger, one at a time per account.
type Service struct {
	ledger   ledger.Ledger
	locker   lock.Locker
	sessions BalanceRefresher
	notifier notification.Notifier
	limits   Limits
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	inflight singleflight.Group
}

// Option customises a Service.
type Option func(*Service)

func WithLimits(l Limits) Option { return func(s *Service) { s.limits = l } }

func WithSessions(r BalanceRefresher) Option { return func(s *Service) { s.sessions = r } }

func WithNotifier(n notification.Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithLocation sets the timezone in which the daily limit resets.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService wires the balance operations. A nil locker falls back to an
// in-process lock.
func NewService(led ledger.Ledger, locker lock.Locker, opts ...Option) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	s := &Service{ledger: led, locker: locker, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deposit credits amount to the requesting account.
func (s *Service) Deposit(ctx context.Context, req Request, amount int64) (Result, error) {
	return s.execute(ctx, "deposit", req, ledger.Posting{
		Type:   ledger.TypeDeposit,
		Memo:   memoDeposit,
		Amount: amount,
	}, notification.KindDeposit)
}

// Withdraw debits amount in cash from the requesting account.
func (s *Service) Withdraw(ctx context.Context, req Request, amount int64) (Result, error) {
	return s.execute(ctx, "withdraw", req, ledger.Posting{
		Type:   ledger.TypeWithdrawal,
		Memo:   memoWithdrawal,
		Amount: amount,
	}, notification.KindWithdrawal)
}

// PayBill debits amount as a payment to the named utility service.
func (s *Service) PayBill(ctx context.Context, req Request, service string, amount int64) (Result, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return Result{}, fmt.Errorf("%w: service is required", ErrInvalidService)
	}
	return s.execute(ctx, "bill", req, ledger.Posting{
		Type:   ledger.TypeWithdrawal,
		Memo:   memoBillPayment + service,
		Amount: amount,
	}, notification.KindBillPayment)
}

func (s *Service) execute(ctx context.Context, op string, req Request, p ledger.Posting, kind string) (Result, error) {
	if req.AccountNumber == "" {
		return Result{}, ledger.ErrAccountNotFound
	}
	if p.Amount <= 0 {
		return Result{}, ledger.ErrInvalidAmount
	}
	if s.limits.MaxTransaction > 0 && p.Amount > s.limits.MaxTransaction {
		return Result{}, fmt.Errorf("%w: maximum per operation is %d", ErrLimitExceeded, s.limits.MaxTransaction)
	}
	p.AccountNumber = req.AccountNumber
	p.ClientTxID = req.ClientTxID
	p.Reference = ledger.NewReference()

	run := func() (any, error) { return s.commit(ctx, p) }
	var (
		v   any
		err error
	)
	if req.ClientTxID == "" {
		v, err = run()
	} else {
		v, err, _ = s.inflight.Do(op+":"+req.AccountNumber+":"+req.ClientTxID, run)
	}
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)

	if req.SessionID != "" && s.sessions != nil {
		if err := s.sessions.UpdateBalance(ctx, req.SessionID, res.Balance); err != nil {
			s.warn("refresh session balance", err)
		}
	}
	if !res.Replayed && s.notifier != nil {
		msg := notification.Message{
			Kind:        kind,
			Destination: req.AccountNumber,
			Body:        fmt.Sprintf("%s of $%s, reference %s", p.Memo, FormatAmount(p.Amount), res.Transaction.Reference),
			Balance:     res.Balance,
			At:          res.Transaction.CreatedAt,
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.warn("send notification", err)
		}
	}
	return res, nil
}

func (s *Service) commit(ctx context.Context, p ledger.Posting) (Result, error) {
	held, err := s.locker.Lock(ctx, lock.AccountKey(p.AccountNumber))
	if err != nil {
		return Result{}, fmt.Errorf("lock account: %w", err)
	}
	defer func() {
		if err := held.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.warn("unlock account", err)
		}
	}()

	if p.ClientTxID != "" {
		prior, err := s.ledger.FindByClientTx(ctx, p.AccountNumber, p.Type, p.ClientTxID)
		switch {
		case err == nil:
			return s.replay(ctx, prior)
		case !errors.Is(err, ledger.ErrTransactionNotFound):
			return Result{}, err
		}
	}

	if p.Type == ledger.TypeWithdrawal {
		if err := s.checkDebit(ctx, p); err != nil {
			return Result{}, err
		}
	}

	tx, err := s.ledger.Post(ctx, p)
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return s.replay(ctx, tx)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Transaction: tx, Balance: tx.BalanceAfter}, nil
}

// replay answers a repeated client transaction id with the original entry
// and the current balance.
func (s *Service) replay(ctx context.Context, prior ledger.Transaction) (Result, error) {
	balance, err := s.ledger.Balance(ctx, prior.AccountNumber)
	if err != nil {
		return Result{}, err
	}
	return Result{Transaction: prior, Balance: balance, Replayed: true}, nil
}

// checkDebit runs the pre-commit checks for debits. The ledger re-checks
// funds inside its commit.
func (s *Service) checkDebit(ctx context.Context, p ledger.Posting) error {
	balance, err := s.ledger.Balance(ctx, p.AccountNumber)
	if err != nil {
		return err
	}
	if p.Amount > balance {
		return ledger.ErrInsufficientFunds
	}
	if s.limits.DailyDebit <= 0 {
		return nil
	}
	spent, err := s.ledger.DebitTotal(ctx, p.AccountNumber, s.startOfDay())
	if err != nil {
		return err
	}
	if spent+p.Amount > s.limits.DailyDebit {
		return fmt.Errorf("%w: daily limit is %d, already used %d", ErrLimitExceeded, s.limits.DailyDebit, spent)
	}
	return nil
}

func (s *Service) startOfDay() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Service) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.String("error", err.Error()))
	}
}

// ParseAmount converts a decimal amount in whole currency units to int64.
// Fractions are rejected.
func ParseAmount(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, ledger.ErrInvalidAmount
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: fractional amounts are not supported", ledger.ErrInvalidAmount)
	}
	if d.GreaterThan(decimal.NewFromInt(maxAmount)) {
		return 0, ledger.ErrInvalidAmount
	}
	return d.IntPart(), nil
}

const maxAmount = 1<<63 - 1

// FormatAmount renders amount with thousands separators, e.g. 1,250,000.
func FormatAmount(amount int64) string {
	digits := decimal.NewFromInt(amount).Abs().String()
	var b strings.Builder
	if amount < 0 {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks . Notifier

const (
	KindDeposit        = "deposit"
	KindWithdrawal     = "withdrawal"
	KindBillPayment    = "bill_payment"
	KindProfileUpdated = "profile_updated"
	KindPasswordReset  = "password_reset"
	KindAccountDeleted = "account_deleted"
)

// Message describes an account change. Destination is the account number;
// other sessions of the same account re-read state when they receive it.
type Message struct {
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	Balance     int64     `json:"balance"`
	At          time.Time `json:"at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
		slog.Int64("balance", message.Balance),
	)
	return nil
}

// Fanout sends every message to all notifiers and joins their errors.
type Fanout []Notifier

// Send delivers message to each notifier in order.
func (f Fanout) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

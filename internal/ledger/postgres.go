package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectTransaction = `SELECT id, account_number, type, memo, amount, reference, balance_after,
        COALESCE(client_tx_id, ''), created_at FROM transactions`

// PostgresLedger persists balances and entries in PostgreSQL. Balances live in
// one row per account number, locked with SELECT ... FOR UPDATE while posting.
type PostgresLedger struct {
	db   *pgxpool.Pool
	opts options
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool, opts ...Option) *PostgresLedger {
	return &PostgresLedger{db: db, opts: buildOptions(opts)}
}

// EnsureAccount guarantees a balance row exists for the account number.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, accountNumber string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO balances (account_number, balance) VALUES ($1, 0)
        ON CONFLICT (account_number) DO NOTHING`, accountNumber)
	return err
}

// Balance returns the current balance for the account.
func (l *PostgresLedger) Balance(ctx context.Context, accountNumber string) (int64, error) {
	var balance int64
	err := l.db.QueryRow(ctx, `SELECT balance FROM balances WHERE account_number = $1`, accountNumber).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Post locks the balance row, applies the posting and appends the entry in one transaction.
func (l *PostgresLedger) Post(ctx context.Context, p Posting) (Transaction, error) {
	if err := p.validate(); err != nil {
		return Transaction{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM balances WHERE account_number = $1 FOR UPDATE`, p.AccountNumber).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrAccountNotFound
		}
		return Transaction{}, err
	}

	if p.ClientTxID != "" {
		existing, err := scanTransaction(tx.QueryRow(ctx, selectTransaction+`
            WHERE account_number = $1 AND type = $2 AND client_tx_id = $3`, p.AccountNumber, string(p.Type), p.ClientTxID))
		if err == nil {
			return existing, ErrDuplicateTransaction
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, err
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

	entry := Transaction{
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

	if _, err := tx.Exec(ctx, `UPDATE balances SET balance = $2, updated_at = $3 WHERE account_number = $1`,
		p.AccountNumber, balance, entry.CreatedAt); err != nil {
		return Transaction{}, err
	}
	if err := insertTransaction(ctx, tx, entry); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return entry, nil
}

// List returns the filtered history for the account, most recent first.
func (l *PostgresLedger) List(ctx context.Context, accountNumber string, f Filter) ([]Transaction, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if _, err := l.Balance(ctx, accountNumber); err != nil {
		return nil, err
	}

	var (
		query strings.Builder
		args  = []any{accountNumber}
	)
	query.WriteString(selectTransaction)
	query.WriteString(` WHERE account_number = $1`)
	if f.Year > 0 || f.Month > 0 {
		args = append(args, f.location().String())
		tz := len(args)
		if f.Year > 0 {
			args = append(args, f.Year)
			fmt.Fprintf(&query, ` AND EXTRACT(YEAR FROM created_at AT TIME ZONE $%d)::int = $%d`, tz, len(args))
		}
		if f.Month > 0 {
			args = append(args, f.Month)
			fmt.Fprintf(&query, ` AND EXTRACT(MONTH FROM created_at AT TIME ZONE $%d)::int = $%d`, tz, len(args))
		}
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since.UTC())
		fmt.Fprintf(&query, ` AND created_at >= $%d`, len(args))
	}
	query.WriteString(` ORDER BY created_at DESC, id DESC`)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&query, ` LIMIT $%d`, len(args))
	}

	rows, err := l.db.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// DebitTotal sums withdrawals posted at or after since.
func (l *PostgresLedger) DebitTotal(ctx context.Context, accountNumber string, since time.Time) (int64, error) {
	var total int64
	err := l.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::bigint FROM transactions
        WHERE account_number = $1 AND type = 'withdrawal' AND created_at >= $2`, accountNumber, since.UTC()).Scan(&total)
	return total, err
}

// DeleteAccount removes the balance row; entries follow through ON DELETE CASCADE.
func (l *PostgresLedger) DeleteAccount(ctx context.Context, accountNumber string) error {
	_, err := l.db.Exec(ctx, `DELETE FROM balances WHERE account_number = $1`, accountNumber)
	return err
}

// FindByClientTx looks up the entry committed under a client transaction id.
func (l *PostgresLedger) FindByClientTx(ctx context.Context, accountNumber string, typ Type, clientTxID string) (Transaction, error) {
	if clientTxID == "" {
		return Transaction{}, ErrTransactionNotFound
	}
	tx, err := scanTransaction(l.db.QueryRow(ctx, selectTransaction+`
        WHERE account_number = $1 AND type = $2 AND client_tx_id = $3`, accountNumber, string(typ), clientTxID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, err
}

// Restore creates the balance row when the account has none and inserts
// history entries that are not present yet. A live balance is never replaced.
func (l *PostgresLedger) Restore(ctx context.Context, accountNumber string, balance int64, history []Transaction) error {
	if balance < 0 {
		return ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO balances (account_number, balance) VALUES ($1, $2)
        ON CONFLICT (account_number) DO NOTHING`, accountNumber, balance); err != nil {
		return err
	}
	for _, entry := range history {
		entry.AccountNumber = accountNumber
		if err := insertTransaction(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func insertTransaction(ctx context.Context, tx pgx.Tx, entry Transaction) error {
	var clientTxID any
	if entry.ClientTxID != "" {
		clientTxID = entry.ClientTxID
	}
	_, err := tx.Exec(ctx, `INSERT INTO transactions
        (id, account_number, type, memo, amount, reference, balance_after, client_tx_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO NOTHING`,
		entry.ID.Int64(), entry.AccountNumber, string(entry.Type), entry.Memo, entry.Amount,
		entry.Reference, entry.BalanceAfter, clientTxID, entry.CreatedAt.UTC())
	return err
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		entry Transaction
		id    int64
		typ   string
	)
	if err := row.Scan(&id, &entry.AccountNumber, &typ, &entry.Memo, &entry.Amount, &entry.Reference,
		&entry.BalanceAfter, &entry.ClientTxID, &entry.CreatedAt); err != nil {
		return Transaction{}, err
	}
	entry.ID = snowflake.ParseInt64(id)
	entry.Type = Type(typ)
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}

package account

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists accounts.
type Repository interface {
	// Create assigns the sequential id and stores the account.
	Create(ctx context.Context, a Account) (Account, error)
	// Restore stores an account keeping its id; existing accounts are left alone.
	Restore(ctx context.Context, a Account) error
	FindByID(ctx context.Context, id int64) (Account, error)
	FindByCredentials(ctx context.Context, idType, idNumber string) (Account, error)
	FindByAccountNumber(ctx context.Context, number string) (Account, error)
	Exists(ctx context.Context, idType, idNumber string) (bool, error)
	List(ctx context.Context) ([]Account, error)
	Update(ctx context.Context, id int64, p Patch) (Account, error)
	// DeleteByAccountNumber removes the account and, through foreign keys, its ledger entries.
	DeleteByAccountNumber(ctx context.Context, number string) error
}

const (
	uniqueViolation         = "23505"
	accountNumberConstraint = "accounts_account_number_key"

	selectAccount = `SELECT id, id_type, id_number, first_name, last_name, gender, phone, email, address, city,
        password_hash, account_number, created_at, last_access_at FROM accounts`
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account and returns it with its assigned id.
func (r *PostgresRepository) Create(ctx context.Context, a Account) (Account, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO accounts
        (id_type, id_number, first_name, last_name, gender, phone, email, address, city, password_hash, account_number, created_at, last_access_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id`,
		a.IDType, a.IDNumber, a.FirstName, a.LastName, a.Gender, a.Phone, a.Email, a.Address, a.City,
		a.PasswordHash, a.AccountNumber, a.CreatedAt.UTC(), nullableTime(a.LastAccessAt)).Scan(&a.ID)
	if err != nil {
		return Account{}, translateError(err)
	}
	return a, nil
}

// Restore inserts an account with its original id and advances the id sequence.
func (r *PostgresRepository) Restore(ctx context.Context, a Account) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO accounts
        (id, id_type, id_number, first_name, last_name, gender, phone, email, address, city, password_hash, account_number, created_at, last_access_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT DO NOTHING`,
		a.ID, a.IDType, a.IDNumber, a.FirstName, a.LastName, a.Gender, a.Phone, a.Email, a.Address, a.City,
		a.PasswordHash, a.AccountNumber, a.CreatedAt.UTC(), nullableTime(a.LastAccessAt)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('accounts', 'id'), GREATEST((SELECT MAX(id) FROM accounts), 1))`); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindByID fetches an account by its sequential id.
func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
}

// FindByCredentials fetches an account by identification type and number.
func (r *PostgresRepository) FindByCredentials(ctx context.Context, idType, idNumber string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE id_type = $1 AND id_number = $2`, idType, idNumber))
}

// FindByAccountNumber fetches an account by its account number.
func (r *PostgresRepository) FindByAccountNumber(ctx context.Context, number string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE account_number = $1`, number))
}

// Exists reports whether the identification is already registered.
func (r *PostgresRepository) Exists(ctx context.Context, idType, idNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id_type = $1 AND id_number = $2)`, idType, idNumber).Scan(&exists)
	return exists, err
}

// List returns every account ordered by id.
func (r *PostgresRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, selectAccount+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update applies a partial update; nil patch fields keep their stored value.
func (r *PostgresRepository) Update(ctx context.Context, id int64, p Patch) (Account, error) {
	var lastAccess any
	if p.LastAccessAt != nil {
		lastAccess = p.LastAccessAt.UTC()
	}
	return scanAccount(r.db.QueryRow(ctx, `UPDATE accounts SET
            first_name = COALESCE($2, first_name),
            last_name = COALESCE($3, last_name),
            gender = COALESCE($4, gender),
            phone = COALESCE($5, phone),
            email = COALESCE($6, email),
            address = COALESCE($7, address),
            city = COALESCE($8, city),
            password_hash = COALESCE($9, password_hash),
            last_access_at = COALESCE($10, last_access_at)
        WHERE id = $1
        RETURNING id, id_type, id_number, first_name, last_name, gender, phone, email, address, city,
            password_hash, account_number, created_at, last_access_at`,
		id, p.FirstName, p.LastName, p.Gender, p.Phone, p.Email, p.Address, p.City, p.PasswordHash, lastAccess))
}

// DeleteByAccountNumber deletes the account row; balances and transactions cascade.
func (r *PostgresRepository) DeleteByAccountNumber(ctx context.Context, number string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE account_number = $1`, number)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a          Account
		lastAccess *time.Time
	)
	err := row.Scan(&a.ID, &a.IDType, &a.IDNumber, &a.FirstName, &a.LastName, &a.Gender, &a.Phone, &a.Email,
		&a.Address, &a.City, &a.PasswordHash, &a.AccountNumber, &a.CreatedAt, &lastAccess)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if lastAccess != nil {
		a.LastAccessAt = lastAccess.UTC()
	}
	return a, nil
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == accountNumberConstraint {
			return ErrAccountNumberTaken
		}
		return ErrDuplicateAccount
	}
	return err
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

package account

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mockbank/mockbank/internal/ledger"
	"github.com/mockbank/mockbank/internal/validation"
)

const numberAttempts = 5

// NumberGenerator mints candidate account numbers.
type NumberGenerator func() string

// RandomAccountNumber returns a random 10-digit account number.
func RandomAccountNumber() string {
	return fmt.Sprintf("%d", 1_000_000_000+rand.Int64N(9_000_000_000))
}

// Service manages the account lifecycle: registration, credentials, profile and deletion.
type Service struct {
	repo      Repository
	ledger    ledger.Ledger
	numbers   NumberGenerator
	now       func() time.Time
	hashCost  int
	dummyHash []byte
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNumberGenerator overrides account number generation.
func WithNumberGenerator(gen NumberGenerator) Option {
	return func(s *Service) { s.numbers = gen }
}

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService creates an account service backed by repo for identity data and
// led for balances.
func NewService(repo Repository, led ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		ledger:   led,
		numbers:  RandomAccountNumber,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	// compared against when the account is unknown so both paths cost the same
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("mockbank-dummy-password"), s.hashCost)
	return s
}

// Register creates a new account with a zero balance.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Account, error) {
	in.IDType = strings.ToUpper(strings.TrimSpace(in.IDType))
	in.IDNumber = strings.TrimSpace(in.IDNumber)
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.Struct(in); err != nil {
		return Account{}, err
	}
	if len(in.Password) > MaxPasswordBytes {
		return Account{}, validation.NewError("password", ErrPasswordTooLong.Error())
	}

	exists, err := s.repo.Exists(ctx, in.IDType, in.IDNumber)
	if err != nil {
		return Account{}, err
	}
	if exists {
		return Account{}, ErrDuplicateAccount
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return Account{}, err
	}

	now := s.now().UTC()
	candidate := Account{
		IDType:       in.IDType,
		IDNumber:     in.IDNumber,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Gender:       in.Gender,
		Phone:        in.Phone,
		Email:        in.Email,
		Address:      in.Address,
		City:         in.City,
		PasswordHash: hash,
		CreatedAt:    now,
		LastAccessAt: now,
	}

	var created Account
	for attempt := 0; ; attempt++ {
		candidate.AccountNumber = s.numbers()
		created, err = s.repo.Create(ctx, candidate)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrAccountNumberTaken) || attempt+1 >= numberAttempts {
			return Account{}, err
		}
	}

	if err := s.ledger.EnsureAccount(ctx, created.AccountNumber); err != nil {
		if delErr := s.repo.DeleteByAccountNumber(ctx, created.AccountNumber); delErr != nil {
			return Account{}, errors.Join(err, delErr)
		}
		return Account{}, fmt.Errorf("open ledger account: %w", err)
	}
	return created, nil
}

// Authenticate verifies identification and password and stamps the access time.
func (s *Service) Authenticate(ctx context.Context, idType, idNumber, password string) (Account, error) {
	a, err := s.repo.FindByCredentials(ctx, strings.ToUpper(strings.TrimSpace(idType)), strings.TrimSpace(idNumber))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	a, err = s.repo.Update(ctx, a.ID, Patch{LastAccessAt: &now})
	if err != nil {
		return Account{}, err
	}
	return s.withBalance(ctx, a)
}

// Get returns the account identified by its account number, balance included.
func (s *Service) Get(ctx context.Context, accountNumber string) (Account, error) {
	a, err := s.repo.FindByAccountNumber(ctx, accountNumber)
	if err != nil {
		return Account{}, err
	}
	return s.withBalance(ctx, a)
}

// Lookup finds an account by identification, balance included.
func (s *Service) Lookup(ctx context.Context, idType, idNumber string) (Account, error) {
	a, err := s.repo.FindByCredentials(ctx, strings.ToUpper(strings.TrimSpace(idType)), strings.TrimSpace(idNumber))
	if err != nil {
		return Account{}, err
	}
	return s.withBalance(ctx, a)
}

// List returns every account with balances, ordered by id.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i], err = s.withBalance(ctx, accounts[i]); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// UpdateProfile applies a partial profile update.
func (s *Service) UpdateProfile(ctx context.Context, accountNumber string, in ProfileInput) (Account, error) {
	if err := validation.Struct(in); err != nil {
		return Account{}, err
	}
	a, err := s.repo.FindByAccountNumber(ctx, accountNumber)
	if err != nil {
		return Account{}, err
	}
	a, err = s.repo.Update(ctx, a.ID, Patch{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Gender:    in.Gender,
		Phone:     in.Phone,
		Email:     in.Email,
		Address:   in.Address,
		City:      in.City,
	})
	if err != nil {
		return Account{}, err
	}
	return s.withBalance(ctx, a)
}

// VerifyRecovery matches identification and email (case-insensitive) for password recovery.
func (s *Service) VerifyRecovery(ctx context.Context, idType, idNumber, email string) (Account, error) {
	a, err := s.repo.FindByCredentials(ctx, strings.ToUpper(strings.TrimSpace(idType)), strings.TrimSpace(idNumber))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, ErrRecoveryMismatch
		}
		return Account{}, err
	}
	if !strings.EqualFold(strings.TrimSpace(a.Email), strings.TrimSpace(email)) {
		return Account{}, ErrRecoveryMismatch
	}
	return a, nil
}

func (s *Service) hashPassword(password string) ([]byte, error) {
	if len(password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	return bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
}

// ResetPassword replaces the password hash.
func (s *Service) ResetPassword(ctx context.Context, accountNumber, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	a, err := s.repo.FindByAccountNumber(ctx, accountNumber)
	if err != nil {
		return err
	}
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = s.repo.Update(ctx, a.ID, Patch{PasswordHash: hash, LastAccessAt: &now})
	return err
}

// Delete removes the account and its ledger history.
func (s *Service) Delete(ctx context.Context, accountNumber string) error {
	if _, err := s.repo.FindByAccountNumber(ctx, accountNumber); err != nil {
		return err
	}
	if err := s.repo.DeleteByAccountNumber(ctx, accountNumber); err != nil {
		return err
	}
	return s.ledger.DeleteAccount(ctx, accountNumber)
}

func (s *Service) withBalance(ctx context.Context, a Account) (Account, error) {
	balance, err := s.ledger.Balance(ctx, a.AccountNumber)
	if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
		return Account{}, err
	}
	a.Balance = balance
	return a, nil
}

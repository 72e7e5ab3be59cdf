package account

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrDuplicateAccount   = errors.New("an account with this identification already exists")
	ErrAccountNumberTaken = errors.New("account number already assigned")
	ErrInvalidCredentials = errors.New("invalid identification or password")
	ErrRecoveryMismatch   = errors.New("no account matches the provided recovery data")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
)

// MinPasswordLength is the shortest password accepted at registration and reset.
const MinPasswordLength = 6

// MaxPasswordBytes is bcrypt's input limit; multi-byte characters count per byte.
const MaxPasswordBytes = 72

// Account is a customer's banking identity. Balance is owned by the ledger and
// filled in by the service on reads.
type Account struct {
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
	PasswordHash  []byte    `json:"-"`
	AccountNumber string    `json:"account_number"`
	Balance       int64     `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccessAt  time.Time `json:"last_access_at,omitempty"`
}

// FullName joins first and last name.
func (a Account) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Patch carries a partial update; nil fields are left untouched.
type Patch struct {
	FirstName    *string
	LastName     *string
	Gender       *string
	Phone        *string
	Email        *string
	Address      *string
	City         *string
	PasswordHash []byte
	LastAccessAt *time.Time
}

func (p Patch) apply(a *Account) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&a.FirstName, p.FirstName)
	set(&a.LastName, p.LastName)
	set(&a.Gender, p.Gender)
	set(&a.Phone, p.Phone)
	set(&a.Email, p.Email)
	set(&a.Address, p.Address)
	set(&a.City, p.City)
	if p.PasswordHash != nil {
		a.PasswordHash = p.PasswordHash
	}
	if p.LastAccessAt != nil {
		a.LastAccessAt = p.LastAccessAt.UTC()
	}
}

// RegisterInput is the data collected by the registration form.
type RegisterInput struct {
	IDType    string `json:"id_type" validate:"required,max=10"`
	IDNumber  string `json:"id_number" validate:"required,numeric,min=5,max=15"`
	FirstName string `json:"first_name" validate:"required,max=60"`
	LastName  string `json:"last_name" validate:"required,max=60"`
	Gender    string `json:"gender" validate:"omitempty,max=20"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Email     string `json:"email" validate:"required,email"`
	Address   string `json:"address" validate:"omitempty,max=120"`
	City      string `json:"city" validate:"omitempty,max=60"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
}

// ProfileInput is a partial profile update submitted by the account owner.
type ProfileInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=60"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=60"`
	Gender    *string `json:"gender" validate:"omitempty,max=20"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Address   *string `json:"address" validate:"omitempty,max=120"`
	City      *string `json:"city" validate:"omitempty,max=60"`
}

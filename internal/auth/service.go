// Package auth issues and verifies the tokens that front the session guard:
// short access tokens bound to a session, and single-purpose recovery tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mockbank/mockbank/internal/account"
	"github.com/mockbank/mockbank/internal/notification"
	"github.com/mockbank/mockbank/internal/session"
)

// ErrInvalidToken covers malformed, expired, forged or wrong-purpose tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	PurposeAccess   = "access"
	PurposeRecovery = "recovery"
)

// Claims are the JWT claims issued by this service. Subject is the account number.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	Purpose   string `json:"purpose"`
	jwt.RegisteredClaims
}

// Settings configures token signing.
type Settings struct {
	Secret      []byte
	Issuer      string
	AccessTTL   time.Duration
	RecoveryTTL time.Duration
}

// LoginResult is returned after successful authentication.
type LoginResult struct {
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Session     session.Session `json:"session"`
	Account     account.Account `json:"account"`
}

// RecoveryTicket authorises one password reset for a limited time.
type RecoveryTicket struct {
	Token     string    `json:"recovery_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	accounts *account.Service
	guard    *session.Guard
	settings Settings
	notifier notification.Notifier
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithNotifier(n notification.Notifier) Option { return func(s *Service) { s.notifier = n } }

func NewService(accounts *account.Service, guard *session.Guard, settings Settings, opts ...Option) *Service {
	if settings.AccessTTL <= 0 {
		settings.AccessTTL = 12 * time.Hour
	}
	if settings.RecoveryTTL <= 0 {
		settings.RecoveryTTL = 10 * time.Minute
	}
	s := &Service{accounts: accounts, guard: guard, settings: settings, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login validates credentials, opens a session and signs an access token bound to it.
func (s *Service) Login(ctx context.Context, idType, idNumber, password string) (LoginResult, error) {
	a, err := s.accounts.Authenticate(ctx, idType, idNumber, password)
	if err != nil {
		return LoginResult{}, err
	}
	sess, err := s.guard.Create(ctx, session.Snapshot{
		AccountNumber: a.AccountNumber,
		IDType:        a.IDType,
		IDNumber:      a.IDNumber,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Email:         a.Email,
		Balance:       a.Balance,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	token, exp, err := s.sign(a.AccountNumber, sess.ID, PurposeAccess, s.settings.AccessTTL)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, ExpiresAt: exp, Session: sess, Account: a}, nil
}

// Logout ends the session immediately.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.guard.Destroy(ctx, sessionID)
}

// ParseAccessToken verifies an access token and returns its claims.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	claims, err := s.parse(token, PurposeAccess)
	if err != nil {
		return Claims{}, err
	}
	if claims.SessionID == "" {
		return Claims{}, fmt.Errorf("%w: missing session", ErrInvalidToken)
	}
	return claims, nil
}

// BeginRecovery checks identification against the registered email and
// issues a recovery token.
func (s *Service) BeginRecovery(ctx context.Context, idType, idNumber, email string) (RecoveryTicket, error) {
	a, err := s.accounts.VerifyRecovery(ctx, idType, idNumber, email)
	if err != nil {
		return RecoveryTicket{}, err
	}
	token, exp, err := s.sign(a.AccountNumber, "", PurposeRecovery, s.settings.RecoveryTTL)
	if err != nil {
		return RecoveryTicket{}, err
	}
	return RecoveryTicket{Token: token, ExpiresAt: exp}, nil
}

// CompleteRecovery sets a new password and logs out every open session.
func (s *Service) CompleteRecovery(ctx context.Context, recoveryToken, newPassword string) error {
	claims, err := s.parse(recoveryToken, PurposeRecovery)
	if err != nil {
		return err
	}
	if err := s.accounts.ResetPassword(ctx, claims.Subject, newPassword); err != nil {
		return err
	}
	if err := s.guard.DestroyAllForAccount(ctx, claims.Subject); err != nil {
		return fmt.Errorf("end sessions: %w", err)
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPasswordReset,
			Destination: claims.Subject,
			Body:        "password changed",
		})
	}
	return nil
}

func (s *Service) sign(subject, sessionID, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		SessionID: sessionID,
		Purpose:   purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.settings.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.settings.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (s *Service) parse(token, purpose string) (Claims, error) {
	var claims Claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.settings.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.settings.Issuer))
	}
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.settings.Secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: wrong purpose", ErrInvalidToken)
	}
	return claims, nil
}

// Package session implements the sliding-window session guard. A session is
// AUTHENTICATED until it sees no activity for a full window, after which the
// next check reports it EXPIRED and removes it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means there is no session: the caller is anonymous.
	ErrNotFound = errors.New("session not found")
	// ErrExpired means the session outlived its inactivity window and was cleared.
	ErrExpired = errors.New("session expired")
)

// Fiber locals populated by the session middleware.
const (
	LocalAccountNumber = "account_number"
	LocalSessionID     = "session_id"
	LocalSession       = "session"
)

// DefaultWindow is the inactivity window applied when none is configured.
const DefaultWindow = 30 * time.Minute

// State is the guard's view of a session identifier.
type State int

const (
	Anonymous State = iota
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "anonymous"
	}
}

// Snapshot is the denormalised account view captured at login. Balance is
// refreshed after every balance operation.
type Snapshot struct {
	AccountNumber string `json:"account_number"`
	IDType        string `json:"id_type"`
	IDNumber      string `json:"id_number"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Balance       int64  `json:"balance"`
}

// Session is one authenticated browser/device context.
type Session struct {
	ID           string    `json:"id"`
	Snapshot     Snapshot  `json:"snapshot"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether now is past the expiration instant.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store persists sessions. ttl is a hint for backends with native expiry.
type Store interface {
	Save(ctx context.Context, s Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByAccount(ctx context.Context, accountNumber string) error
}

// storeGrace keeps records around slightly past expiry so the guard can still
// observe and report the EXPIRED transition.
const storeGrace = time.Minute

// Guard applies the session state machine on top of a Store.
type Guard struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

// GuardOption customises a Guard.
type GuardOption func(*Guard)

// WithClock overrides the guard's clock.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard builds a guard with the given inactivity window.
func NewGuard(store Store, window time.Duration, opts ...GuardOption) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	g := &Guard{store: store, window: window, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Window returns the configured inactivity window.
func (g *Guard) Window() time.Duration { return g.window }

// Create starts an AUTHENTICATED session for the snapshot.
func (g *Guard) Create(ctx context.Context, snap Snapshot) (Session, error) {
	now := g.now().UTC()
	s := Session{
		ID:           uuid.NewString(),
		Snapshot:     snap,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(g.window),
	}
	if err := g.save(ctx, s, now); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Get returns a live session. An expired session is deleted and ErrExpired returned.
func (g *Guard) Get(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNotFound
	}
	s, err := g.store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.Expired(g.now()) {
		if err := g.store.Delete(ctx, id); err != nil {
			return Session{}, err
		}
		return Session{}, ErrExpired
	}
	return s, nil
}

// Touch records user activity and slides the expiration forward.
func (g *Guard) Touch(ctx context.Context, id string) (Session, error) {
	s, err := g.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	now := g.now().UTC()
	s.LastActivity = now
	s.ExpiresAt = now.Add(g.window)
	if err := g.save(ctx, s, now); err != nil {
		return Session{}, err
	}
	return s, nil
}

// State classifies id without sliding the window.
func (g *Guard) State(ctx context.Context, id string) State {
	_, err := g.Get(ctx, id)
	switch {
	case err == nil:
		return Authenticated
	case errors.Is(err, ErrExpired):
		return Expired
	default:
		return Anonymous
	}
}

// UpdateBalance refreshes the snapshot balance without counting as activity.
func (g *Guard) UpdateBalance(ctx context.Context, id string, balance int64) error {
	s, err := g.Get(ctx, id)
	if err != nil {
		return err
	}
	s.Snapshot.Balance = balance
	return g.save(ctx, s, g.now().UTC())
}

// Destroy logs the session out immediately.
func (g *Guard) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return g.store.Delete(ctx, id)
}

// DestroyAllForAccount logs out every session of an account (used on account deletion).
func (g *Guard) DestroyAllForAccount(ctx context.Context, accountNumber string) error {
	return g.store.DeleteByAccount(ctx, accountNumber)
}

func (g *Guard) save(ctx context.Context, s Session, now time.Time) error {
	ttl := s.ExpiresAt.Sub(now) + storeGrace
	return g.store.Save(ctx, s, ttl)
}

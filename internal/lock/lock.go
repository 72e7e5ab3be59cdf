// Package lock serialises balance operations per account, either within one
// process or across instances through Redis.
package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrLockHeld is returned when the lock could not be acquired in time.
	ErrLockHeld = errors.New("lock is held by another operation")
	// ErrNotHeld is returned when releasing a lock that expired or belongs to someone else.
	ErrNotHeld = errors.New("lock not held")
)

// Lock is an acquired lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// Locker acquires named locks. Lock blocks until the lock is acquired, the
// implementation's wait budget runs out, or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Lock, error)
}

// AccountKey is the lock name used for balance operations on an account.
func AccountKey(accountNumber string) string {
	return "lock:account:" + accountNumber
}

// Local is an in-process keyed mutex that honours context cancellation.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock acquires key, waiting until it is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &localLock{parent: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

type localLock struct {
	parent *Local
	key    string
	slot   *slot
	once   sync.Once
}

func (l *localLock) Unlock(context.Context) error {
	err := ErrNotHeld
	l.once.Do(func() {
		<-l.slot.ch
		l.parent.release(l.key, l.slot)
		err = nil
	})
	return err
}

package account

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]Account
}

// NewMemoryRepository builds an in-memory account store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{nextID: 1, byID: make(map[int64]Account)}
}

func (r *memoryRepository) Create(_ context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.IDType == a.IDType && existing.IDNumber == a.IDNumber {
			return Account{}, ErrDuplicateAccount
		}
		if existing.AccountNumber == a.AccountNumber {
			return Account{}, ErrAccountNumberTaken
		}
	}
	a.ID = r.nextID
	r.nextID++
	r.byID[a.ID] = a
	return a, nil
}

func (r *memoryRepository) Restore(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.AccountNumber == a.AccountNumber || (existing.IDType == a.IDType && existing.IDNumber == a.IDNumber) {
			return nil
		}
	}
	if _, taken := r.byID[a.ID]; taken || a.ID <= 0 {
		a.ID = r.nextID
	}
	r.byID[a.ID] = a
	if a.ID >= r.nextID {
		r.nextID = a.ID + 1
	}
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id int64) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) FindByCredentials(_ context.Context, idType, idNumber string) (Account, error) {
	return r.find(func(a Account) bool { return a.IDType == idType && a.IDNumber == idNumber })
}

func (r *memoryRepository) FindByAccountNumber(_ context.Context, number string) (Account, error) {
	return r.find(func(a Account) bool { return a.AccountNumber == number })
}

func (r *memoryRepository) Exists(ctx context.Context, idType, idNumber string) (bool, error) {
	_, err := r.FindByCredentials(ctx, idType, idNumber)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *memoryRepository) List(_ context.Context) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepository) Update(_ context.Context, id int64, p Patch) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	p.apply(&a)
	r.byID[id] = a
	return a, nil
}

func (r *memoryRepository) DeleteByAccountNumber(_ context.Context, number string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.byID {
		if a.AccountNumber == number {
			delete(r.byID, id)
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepository) find(match func(Account) bool) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byID {
		if match(a) {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

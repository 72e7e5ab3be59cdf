package lock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// Redis is a single-instance Redis lock: SET NX with a TTL, released by a
// script that only deletes the key when the caller still owns it.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	token  func() string
}

// RedisOption customises a Redis locker.
type RedisOption func(*Redis)

// WithTokenFunc overrides the owner token generator.
func WithTokenFunc(fn func() string) RedisOption {
	return func(r *Redis) { r.token = fn }
}

// NewRedis creates a Redis-backed Locker. ttl bounds how long a crashed holder
// can block others; wait bounds how long Lock retries before giving up.
func NewRedis(client redis.UniversalClient, ttl, wait time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: ttl, wait: wait, token: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock retries SET NX with jitter until it succeeds or the wait budget is spent.
func (r *Redis) Lock(ctx context.Context, key string) (Lock, error) {
	value := r.token()
	deadline := time.Now().Add(r.wait)
	for {
		ok, err := r.client.SetNX(ctx, key, value, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return &redisLock{client: r.client, key: key, value: value}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		}

		timer := time.NewTimer(time.Duration(10+rand.IntN(90)) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	value  string
}

func (l *redisLock) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	return nil
}

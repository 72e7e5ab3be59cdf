package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "session:v1:"
	accountPrefix = "session:v1:account:"
)

// RedisStore keeps sessions as JSON values with a TTL, plus a per-account set
// of session ids so every session of an account can be revoked at once.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Save writes the session and indexes it under its account.
func (r *RedisStore) Save(ctx context.Context, s Session, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	index := accountPrefix + s.Snapshot.AccountNumber

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionPrefix+s.ID, payload, ttl)
		pipe.SAdd(ctx, index, s.ID)
		pipe.Expire(ctx, index, ttl)
		return nil
	})
	return err
}

// Load fetches a session or returns ErrNotFound.
func (r *RedisStore) Load(ctx context.Context, id string) (Session, error) {
	raw, err := r.client.Get(ctx, sessionPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

// Delete removes a single session.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	s, err := r.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionPrefix+id)
		pipe.SRem(ctx, accountPrefix+s.Snapshot.AccountNumber, id)
		return nil
	})
	return err
}

// DeleteByAccount removes every session indexed under the account.
func (r *RedisStore) DeleteByAccount(ctx context.Context, accountNumber string) error {
	index := accountPrefix + accountNumber
	ids, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionPrefix+id)
	}
	keys = append(keys, index)
	return r.client.Del(ctx, keys...).Err()
}

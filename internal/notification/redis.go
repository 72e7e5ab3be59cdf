package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

const channelPrefix = "account-events:"

// Channel is the pub/sub channel carrying events for one account.
func Channel(accountNumber string) string {
	return channelPrefix + accountNumber
}

// RedisNotifier publishes account events on Redis pub/sub. Publishing goes
// through a circuit breaker so a struggling Redis does not slow every
// balance operation down.
type RedisNotifier struct {
	client  redis.UniversalClient
	breaker *gobreaker.CircuitBreaker[int64]
}

// NewRedisNotifier builds a publisher; the breaker opens after five
// consecutive failures and probes again after openFor.
func NewRedisNotifier(client redis.UniversalClient, openFor time.Duration) *RedisNotifier {
	settings := gobreaker.Settings{
		Name:        "redis-notifier",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &RedisNotifier{client: client, breaker: gobreaker.NewCircuitBreaker[int64](settings)}
}

// Send publishes message to the destination account channel.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	if message.At.IsZero() {
		message.At = time.Now().UTC()
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = n.breaker.Execute(func() (int64, error) {
		return n.client.Publish(ctx, Channel(message.Destination), payload).Result()
	})
	return err
}

// State exposes the breaker state for health reporting.
func (n *RedisNotifier) State() string {
	return n.breaker.State().String()
}

// Subscribe listens for events of one account. Callers must Close the
// returned subscription.
func Subscribe(ctx context.Context, client redis.UniversalClient, accountNumber string) *redis.PubSub {
	return client.Subscribe(ctx, Channel(accountNumber))
}

// Decode parses a pub/sub payload.
func Decode(msg *redis.Message) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
		return Message{}, fmt.Errorf("decode notification: %w", err)
	}
	return m, nil
}

package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "invigil:runlock:"

// RedisLocker implements Locker with SET NX + TTL so the scope lock holds
// across API instances. A crashed holder frees the scope when the TTL lapses.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps a redis client as a Locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire attempts to take the scope lock.
func (l *RedisLocker) Acquire(ctx context.Context, scope string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+scope, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock: %w", err)
	}
	return ok, nil
}

// Release deletes the scope lock.
func (l *RedisLocker) Release(ctx context.Context, scope string) error {
	if err := l.client.Del(ctx, keyPrefix+scope).Err(); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker serializes check-then-act sections with SetNX leases. The
// database still enforces the hard guarantees; the lock exists to turn most
// races into a clean early error instead of a constraint violation.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

var ErrLocked = fmt.Errorf("resource is already being processed")

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	release := func() {
		l.client.Del(context.Background(), key)
	}
	return release, nil
}

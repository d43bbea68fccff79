package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AssetLockKey builds the redis key serializing depreciation postings of one asset.
func AssetLockKey(assetID uuid.UUID) string {
	return fmt.Sprintf("assets:asset:%s:lock", assetID)
}

// PayrollLockKey builds the redis key guarding generation of one pay period.
func PayrollLockKey(month, year int) string {
	return fmt.Sprintf("payroll:period:%04d-%02d:lock", year, month)
}

// ErrLockHeld indicates another worker owns the lock.
var ErrLockHeld = errors.New("shared: lock held by another worker")

// ReleaseFunc gives a lock back. It is safe to call after the TTL expired.
type ReleaseFunc func(ctx context.Context) error

// Locker grants short-lived exclusive sections keyed by string.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker constructs the locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes key for ttl or fails with ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("shared: redis locker not initialised")
	}
	if ttl <= 0 {
		return nil, errors.New("shared: lock ttl must be positive")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

// NoopLocker grants every lock. Used when Redis is not configured.
type NoopLocker struct{}

// Acquire always succeeds.
func (NoopLocker) Acquire(context.Context, string, time.Duration) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

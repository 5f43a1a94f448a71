package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTickLockKey is the key dispatchers contend on.
const DefaultTickLockKey = "pipeline:dispatcher:tick"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisTickLock is a single-key lease shared by every dispatcher instance.
type RedisTickLock struct {
	client redis.UniversalClient
	key    string
}

// NewRedisTickLock creates a lock on key, falling back to DefaultTickLockKey.
func NewRedisTickLock(client redis.UniversalClient, key string) *RedisTickLock {
	if key == "" {
		key = DefaultTickLockKey
	}
	return &RedisTickLock{client: client, key: key}
}

// TryLock sets the key with NX and a TTL. ok is false when another holder owns it.
func (l *RedisTickLock) TryLock(ctx context.Context, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	token := uuid.NewString()

	// SET NX PX in one command; SETNX followed by EXPIRE is not atomic.
	status, err := l.client.SetArgs(ctx, l.key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis SET NX: %w", err)
	}
	if status != "OK" {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil &&
			!errors.Is(err, redis.Nil) {
			return fmt.Errorf("release tick lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// ForceRelease deletes the key regardless of owner. It reports whether a lock was held.
func (l *RedisTickLock) ForceRelease(ctx context.Context) (bool, error) {
	n, err := l.client.Del(ctx, l.key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Health checks the health of the Redis connection.
func (l *RedisTickLock) Health(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards a configuration so that only one replica sends its
// heartbeat at a time.
type Locker interface {
	Acquire(ctx context.Context, configID uuid.UUID, ttl time.Duration) (Lock, bool, error)
}

// Lock is a held heartbeat lock.
type Lock interface {
	Release(ctx context.Context) error
}

// NopLocker always grants the lock. Used for single-replica deployments.
type NopLocker struct{}

// Acquire implements Locker.
func (NopLocker) Acquire(context.Context, uuid.UUID, time.Duration) (Lock, bool, error) {
	return nopLock{}, true, nil
}

type nopLock struct{}

func (nopLock) Release(context.Context) error { return nil }

// LockKey returns the Redis key guarding a configuration's heartbeat.
func LockKey(configID uuid.UUID) string {
	return "hiveguard:heartbeat:" + configID.String()
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker takes per-configuration locks with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, configID uuid.UUID, ttl time.Duration) (Lock, bool, error) {
	key := LockKey(configID)
	token := uuid.NewString()

	err := l.client.SetArgs(ctx, key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return &redisLock{client: l.client, key: key, token: token}, true, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

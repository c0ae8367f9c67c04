package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLockNotAcquired is returned when another process holds the lock
	ErrLockNotAcquired = errors.New("session lock held by another process")

	// ErrLockNotHeld is returned when releasing or extending a lock this instance does not own
	ErrLockNotHeld = errors.New("session lock not held")
)

// Release and extend only touch the key while it still carries our value.
const (
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	extendScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

// SessionLock stops two client processes from driving the same saved
// session in a shared Redis. The lock expires after ttl unless extended.
type SessionLock struct {
	redis *RedisClient
	key   string
	value string
	ttl   time.Duration
}

// NewSessionLock creates a lock on the named session. The key is
// lock:{name} under the client's key prefix.
func NewSessionLock(redis *RedisClient, name string, ttl time.Duration) *SessionLock {
	return &SessionLock{
		redis: redis,
		key:   "lock:" + name,
		value: uuid.NewString(),
		ttl:   ttl,
	}
}

// Acquire takes the lock or returns ErrLockNotAcquired.
func (l *SessionLock) Acquire(ctx context.Context) error {
	ok, err := l.redis.client.SetNX(ctx, l.redis.prefixKey(l.key), l.value, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}
	return nil
}

// Release drops the lock if this instance still holds it.
func (l *SessionLock) Release(ctx context.Context) error {
	return l.eval(ctx, releaseScript)
}

// Extend resets the TTL if this instance still holds the lock.
func (l *SessionLock) Extend(ctx context.Context) error {
	return l.eval(ctx, extendScript, l.ttl.Milliseconds())
}

func (l *SessionLock) eval(ctx context.Context, script string, args ...any) error {
	result, err := l.redis.client.Eval(ctx, script, []string{l.redis.prefixKey(l.key)}, append([]any{l.value}, args...)...).Int64()
	if err != nil {
		return fmt.Errorf("redis eval failed: %w", err)
	}
	// 0 when the key is gone or belongs to someone else
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// KeepAlive extends the lock every ttl/3 until ctx is done. It returns
// when the context ends or the lock is lost.
func (l *SessionLock) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Extend(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("db.session_lock.extend_failed",
					"component", "session_lock",
					"event", "lock.extend_error",
					"key", l.key,
					"error", err,
				)
				if errors.Is(err, ErrLockNotHeld) {
					return
				}
			}
		}
	}
}

package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lexcase-backend/internal/shared/metrics"
)

// DefaultLockTTL exceeds the worst-case computation time while bounding how
// long a crashed worker can hold a key.
const DefaultLockTTL = 10 * time.Minute

const lockKeyPrefix = "lexcase:analysis:lock:"

// LockResult reports the outcome of an acquisition attempt. When Acquired is
// false, RemainingTTL carries the holder's lease time when it could be read.
type LockResult struct {
	Acquired     bool
	Token        string
	RemainingTTL time.Duration
}

// Locker provides a single advisory lock per analysis key.
type Locker interface {
	// Acquire attempts set-if-absent with a fresh owner token. A backend error
	// fails closed: the lock is reported as not acquired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockResult, error)
	// Release deletes the lock only while the stored value still equals token.
	Release(ctx context.Context, key, token string) error
}

// releaseScript is an atomic compare-and-delete. A read-then-delete would let a
// slow caller release a lock that expired and was reacquired by another owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a shared redis backend.
type RedisLocker struct {
	Client *redis.Client
}

func lockKey(key string) string {
	return lockKeyPrefix + key
}

// Acquire attempts SetNX under the lock namespace for key.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (LockResult, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		// Fail closed: without the backend we cannot prove exclusivity, and a
		// duplicate paid computation costs more than a delayed one.
		return LockResult{}, fmt.Errorf("lock acquire key=%s: %w", key, err)
	}
	if !ok {
		metrics.IncLockContended()
		remaining, ttlErr := l.Client.TTL(ctx, lockKey(key)).Result()
		if ttlErr != nil || remaining < 0 {
			remaining = 0
		}
		return LockResult{Acquired: false, RemainingTTL: remaining}, nil
	}
	return LockResult{Acquired: true, Token: token, RemainingTTL: ttl}, nil
}

// Release runs the compare-and-delete script; a mismatched token is a no-op.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.Client, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("lock release key=%s: %w", key, err)
	}
	return nil
}

var _ Locker = (*RedisLocker)(nil)

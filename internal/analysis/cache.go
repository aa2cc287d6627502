package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lexcase-backend/internal/cases"
	"lexcase-backend/internal/shared/metrics"
	"lexcase-backend/internal/shared/telemetry"
)

// DefaultCacheTTL bounds how long a completed analysis may be reused.
const DefaultCacheTTL = 7 * 24 * time.Hour

const cacheKeyPrefix = "lexcase:analysis:cache:"

// Cache stores completed analysis results keyed by analysis key.
type Cache interface {
	// Lookup returns the entry for key when it is present, unexpired and still
	// fresh against the case's latest movement. Stale entries are invalidated
	// and reported as a miss, never as an error.
	Lookup(ctx context.Context, key, caseID string) (CacheEntry, bool, error)
	Write(ctx context.Context, entry CacheEntry, ttl time.Duration) error
	// Invalidate removes the entry; invalidating an absent key is not an error.
	Invalidate(ctx context.Context, key string) error
}

// RedisCache implements Cache on a shared redis backend so cache state is
// consistent across service instances.
type RedisCache struct {
	Client *redis.Client
	Cases  cases.Repo
}

func cacheKey(key string) string {
	return cacheKeyPrefix + key
}

// Lookup fetches and freshness-checks the entry for key.
func (c *RedisCache) Lookup(ctx context.Context, key, caseID string) (CacheEntry, bool, error) {
	raw, err := c.Client.Get(ctx, cacheKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheMiss()
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("cache get key=%s: %w", key, err)
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Unreadable entries are dropped rather than surfaced.
		_ = c.Invalidate(ctx, key)
		metrics.IncCacheMiss()
		return CacheEntry{}, false, nil
	}

	now := time.Now().UTC()
	if !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt) {
		if err := c.Invalidate(ctx, key); err != nil {
			return CacheEntry{}, false, err
		}
		metrics.IncCacheMiss()
		return CacheEntry{}, false, nil
	}

	// Re-check the case's movement stamp. The key already encodes the stamp
	// observed at derivation time, so this only fires when the case moved
	// between key derivation and this lookup.
	movedAt, err := c.Cases.LatestMovementAt(ctx, caseID)
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("cache freshness case=%s: %w", caseID, err)
	}
	if movementNewer(cases.MovementStamp(movedAt), entry.MovementAt) {
		telemetry.Info("analysis.cache.stale", map[string]any{
			"case_id":  caseID,
			"key":      key,
			"snapshot": entry.MovementAt,
			"current":  cases.MovementStamp(movedAt),
		})
		if err := c.Invalidate(ctx, key); err != nil {
			return CacheEntry{}, false, err
		}
		metrics.IncCacheMiss()
		return CacheEntry{}, false, nil
	}

	entry.AccessCount++
	entry.LastAccessAt = now
	if data, err := json.Marshal(entry); err == nil {
		// Keep the original expiry; access metadata updates must not extend it.
		_ = c.Client.Set(ctx, cacheKey(key), data, redis.KeepTTL).Err()
	}
	metrics.IncCacheHit()
	return entry, true, nil
}

// Write stores the entry with expiry now+ttl. Entries are written once, whole,
// after a successful computation; readers never observe a partial entry.
func (c *RedisCache) Write(ctx context.Context, entry CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttl)
	if entry.LastAccessAt.IsZero() {
		entry.LastAccessAt = now
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache marshal key=%s: %w", entry.Key, err)
	}
	if err := c.Client.Set(ctx, cacheKey(entry.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set key=%s: %w", entry.Key, err)
	}
	return nil
}

// Invalidate deletes the entry for key.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.Client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("cache del key=%s: %w", key, err)
	}
	return nil
}

// movementNewer reports whether the current movement stamp represents a later
// movement than the snapshot taken at cache-write time.
func movementNewer(current, snapshot string) bool {
	if current == snapshot {
		return false
	}
	if snapshot == cases.MovementSentinel {
		return current != cases.MovementSentinel
	}
	if current == cases.MovementSentinel {
		return false
	}
	curT, errCur := time.Parse(time.RFC3339Nano, current)
	snapT, errSnap := time.Parse(time.RFC3339Nano, snapshot)
	if errCur != nil || errSnap != nil {
		return true
	}
	return curT.After(snapT)
}

var _ Cache = (*RedisCache)(nil)

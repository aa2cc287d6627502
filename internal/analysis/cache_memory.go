package analysis

import (
	"context"
	"sync"
	"time"

	"lexcase-backend/internal/cases"
	"lexcase-backend/internal/shared/metrics"
)

// MemoryCache implements Cache in process memory. It backs single-instance dev
// deployments and tests; shared deployments use RedisCache.
type MemoryCache struct {
	Cases cases.Repo

	mu      sync.Mutex
	entries map[string]CacheEntry
}

// NewMemoryCache constructs an empty MemoryCache.
func NewMemoryCache(casesRepo cases.Repo) *MemoryCache {
	return &MemoryCache{Cases: casesRepo, entries: map[string]CacheEntry{}}
}

func (c *MemoryCache) Lookup(ctx context.Context, key, caseID string) (CacheEntry, bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		metrics.IncCacheMiss()
		return CacheEntry{}, false, nil
	}

	now := time.Now().UTC()
	if !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt) {
		_ = c.Invalidate(ctx, key)
		metrics.IncCacheMiss()
		return CacheEntry{}, false, nil
	}

	movedAt, err := c.Cases.LatestMovementAt(ctx, caseID)
	if err != nil {
		return CacheEntry{}, false, err
	}
	if movementNewer(cases.MovementStamp(movedAt), entry.MovementAt) {
		_ = c.Invalidate(ctx, key)
		metrics.IncCacheMiss()
		return CacheEntry{}, false, nil
	}

	entry.AccessCount++
	entry.LastAccessAt = now
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	metrics.IncCacheHit()
	return entry, true, nil
}

func (c *MemoryCache) Write(ctx context.Context, entry CacheEntry, ttl time.Duration) error {
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
	c.mu.Lock()
	c.entries[entry.Key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

var _ Cache = (*MemoryCache)(nil)

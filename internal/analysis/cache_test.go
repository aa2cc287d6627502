package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"lexcase-backend/internal/cases"
)

func setupCache(t *testing.T) (*RedisCache, *miniredis.Miniredis, *cases.MemoryRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	caseRepo := cases.NewMemoryRepo()
	return &RedisCache{Client: client, Cases: caseRepo}, mr, caseRepo
}

func seedCase(t *testing.T, repo *cases.MemoryRepo, id string, movedAt *time.Time) {
	t.Helper()
	err := repo.Create(context.Background(), cases.Case{
		ID:             id,
		WorkspaceID:    "ws-1",
		Title:          "Doe v. Acme",
		LastMovementAt: movedAt,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed case: %v", err)
	}
}

func TestRedisCacheWriteLookup(t *testing.T) {
	cache, _, caseRepo := setupCache(t)
	seedCase(t, caseRepo, "case-1", nil)
	ctx := context.Background()

	entry := CacheEntry{Key: "key-1", VersionID: "v-1", MovementAt: cases.MovementSentinel}
	if err := cache.Write(ctx, entry, time.Hour); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, hit, err := cache.Lookup(ctx, "key-1", "case-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit")
	}
	if got.VersionID != "v-1" {
		t.Fatalf("unexpected version %q", got.VersionID)
	}
	if got.AccessCount != 1 {
		t.Fatalf("expected access count 1, got %d", got.AccessCount)
	}
}

func TestRedisCacheMiss(t *testing.T) {
	cache, _, caseRepo := setupCache(t)
	seedCase(t, caseRepo, "case-1", nil)

	_, hit, err := cache.Lookup(context.Background(), "absent", "case-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if hit {
		t.Fatal("expected a miss for an absent key")
	}
}

func TestRedisCacheExpiry(t *testing.T) {
	cache, mr, caseRepo := setupCache(t)
	seedCase(t, caseRepo, "case-1", nil)
	ctx := context.Background()

	entry := CacheEntry{Key: "key-1", VersionID: "v-1", MovementAt: cases.MovementSentinel}
	if err := cache.Write(ctx, entry, time.Minute); err != nil {
		t.Fatalf("Write: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	_, hit, err := cache.Lookup(ctx, "key-1", "case-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if hit {
		t.Fatal("expected expired entry to miss")
	}
}

func TestRedisCacheStaleOnMovement(t *testing.T) {
	cache, _, caseRepo := setupCache(t)
	seedCase(t, caseRepo, "case-1", nil)
	ctx := context.Background()

	entry := CacheEntry{Key: "key-1", VersionID: "v-1", MovementAt: cases.MovementSentinel}
	if err := cache.Write(ctx, entry, time.Hour); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The case moves after the entry was written.
	if err := caseRepo.RecordMovement(ctx, "case-1", time.Now().UTC()); err != nil {
		t.Fatalf("RecordMovement: %v", err)
	}

	_, hit, err := cache.Lookup(ctx, "key-1", "case-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if hit {
		t.Fatal("expected stale entry to miss")
	}

	// The stale entry must also be gone, not just skipped.
	if _, hit, _ := cache.Lookup(ctx, "key-1", "case-1"); hit {
		t.Fatal("expected stale entry to be invalidated")
	}
}

func TestRedisCacheAccessCountKeepsTTL(t *testing.T) {
	cache, mr, caseRepo := setupCache(t)
	seedCase(t, caseRepo, "case-1", nil)
	ctx := context.Background()

	entry := CacheEntry{Key: "key-1", VersionID: "v-1", MovementAt: cases.MovementSentinel}
	if err := cache.Write(ctx, entry, time.Hour); err != nil {
		t.Fatalf("Write: %v", err)
	}
	before := mr.TTL(cacheKey("key-1"))

	for i := 0; i < 3; i++ {
		if _, hit, err := cache.Lookup(ctx, "key-1", "case-1"); err != nil || !hit {
			t.Fatalf("Lookup %d: hit=%v err=%v", i, hit, err)
		}
	}

	got, _, err := cache.Lookup(ctx, "key-1", "case-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.AccessCount != 4 {
		t.Fatalf("expected access count 4, got %d", got.AccessCount)
	}
	if after := mr.TTL(cacheKey("key-1")); after > before {
		t.Fatalf("lookup extended TTL from %v to %v", before, after)
	}
}

func TestRedisCacheInvalidateAbsentKey(t *testing.T) {
	cache, _, _ := setupCache(t)
	if err := cache.Invalidate(context.Background(), "never-written"); err != nil {
		t.Fatalf("Invalidate absent key: %v", err)
	}
}

func TestMovementNewer(t *testing.T) {
	early := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	tests := []struct {
		name     string
		current  string
		snapshot string
		want     bool
	}{
		{"equal stamps", early.Format(time.RFC3339Nano), early.Format(time.RFC3339Nano), false},
		{"both sentinel", "no-movements", "no-movements", false},
		{"first movement", late.Format(time.RFC3339Nano), "no-movements", true},
		{"later movement", late.Format(time.RFC3339Nano), early.Format(time.RFC3339Nano), true},
		{"older current", early.Format(time.RFC3339Nano), late.Format(time.RFC3339Nano), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := movementNewer(tc.current, tc.snapshot); got != tc.want {
				t.Fatalf("movementNewer(%q, %q) = %v, want %v", tc.current, tc.snapshot, got, tc.want)
			}
		})
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	caseRepo := cases.NewMemoryRepo()
	seedCase(t, caseRepo, "case-1", nil)
	cache := NewMemoryCache(caseRepo)
	ctx := context.Background()

	entry := CacheEntry{Key: "key-1", VersionID: "v-1", MovementAt: cases.MovementSentinel}
	if err := cache.Write(ctx, entry, time.Hour); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, hit, err := cache.Lookup(ctx, "key-1", "case-1")
	if err != nil || !hit {
		t.Fatalf("Lookup: hit=%v err=%v", hit, err)
	}
	if got.VersionID != "v-1" {
		t.Fatalf("unexpected version %q", got.VersionID)
	}

	if err := cache.Invalidate(ctx, "key-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, hit, _ := cache.Lookup(ctx, "key-1", "case-1"); hit {
		t.Fatal("expected miss after invalidation")
	}
}

package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"lexcase-backend/internal/shared/metrics"
)

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker implements Locker in process memory for single-instance dev
// deployments and tests.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

// NewMemoryLocker constructs an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: map[string]memoryLease{}}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (LockResult, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if lease, ok := l.leases[key]; ok && now.Before(lease.expiresAt) {
		metrics.IncLockContended()
		return LockResult{Acquired: false, RemainingTTL: lease.expiresAt.Sub(now)}, nil
	}

	token := uuid.NewString()
	l.leases[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	return LockResult{Acquired: true, Token: token, RemainingTTL: ttl}, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if lease, ok := l.leases[key]; ok && lease.token == token {
		delete(l.leases, key)
	}
	return nil
}

var _ Locker = (*MemoryLocker)(nil)

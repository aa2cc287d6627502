package cases

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo stores cases in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Case
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Case)}
}

// Create stores the case.
func (r *MemoryRepo) Create(ctx context.Context, c Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	return nil
}

// GetByID returns a case by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, caseID string) (Case, error) {
	if err := ctx.Err(); err != nil {
		return Case{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[caseID]
	if !ok {
		return Case{}, ErrNotFound
	}
	return c, nil
}

// LatestMovementAt returns the last movement time for a case.
func (r *MemoryRepo) LatestMovementAt(ctx context.Context, caseID string) (*time.Time, error) {
	c, err := r.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return c.LastMovementAt, nil
}

// RecordMovement advances the case's movement timestamp.
func (r *MemoryRepo) RecordMovement(ctx context.Context, caseID string, movedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[caseID]
	if !ok {
		return ErrNotFound
	}
	movedAt = movedAt.UTC()
	if c.LastMovementAt == nil || movedAt.After(*c.LastMovementAt) {
		c.LastMovementAt = &movedAt
		c.UpdatedAt = time.Now().UTC()
		r.byID[caseID] = c
	}
	return nil
}

// Package credits exposes the credit-availability check the analysis
// coordinator consults before starting paid work. Billing and consumption
// accounting live elsewhere; this is a precondition, not an enforcement
// mechanism.
package credits

import (
	"context"
	"sync"
)

// Checker reports whether a workspace may spend n analysis credits.
type Checker interface {
	CanConsume(ctx context.Context, workspaceID string, n int) (bool, error)
}

// MemoryChecker is an in-memory Checker for development and tests.
type MemoryChecker struct {
	mu        sync.RWMutex
	remaining map[string]int
	// Unlimited short-circuits the balance map entirely.
	Unlimited bool
}

// NewMemoryChecker constructs a MemoryChecker with no balances set.
func NewMemoryChecker() *MemoryChecker {
	return &MemoryChecker{remaining: make(map[string]int)}
}

// SetRemaining sets a workspace's remaining credit balance.
func (c *MemoryChecker) SetRemaining(workspaceID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining[workspaceID] = n
}

// CanConsume reports whether the workspace's balance covers n credits.
func (c *MemoryChecker) CanConsume(ctx context.Context, workspaceID string, n int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if c.Unlimited {
		return true, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	remaining, ok := c.remaining[workspaceID]
	if !ok {
		return false, nil
	}
	return remaining >= n, nil
}

var _ Checker = (*MemoryChecker)(nil)

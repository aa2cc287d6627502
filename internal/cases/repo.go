package cases

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Repo defines persistence operations for cases.
type Repo interface {
	Create(ctx context.Context, c Case) error
	GetByID(ctx context.Context, caseID string) (Case, error)
	// LatestMovementAt returns the case's last external movement time, or nil
	// when no movement has been recorded.
	LatestMovementAt(ctx context.Context, caseID string) (*time.Time, error)
	// RecordMovement advances the case's movement timestamp. Timestamps never
	// move backwards; an older timestamp is ignored.
	RecordMovement(ctx context.Context, caseID string, movedAt time.Time) error
}

package analysis

import (
	"context"
	"time"
)

// Repo persists the version ledger and the transient job records. Versions are
// append-only with a uniqueness guarantee on (case, version); CreateVersion
// returns ErrVersionConflict when a racing key wins the number, and the
// coordinator re-allocates.
type Repo interface {
	NextVersion(ctx context.Context, caseID string) (int, error)
	CreateVersion(ctx context.Context, v Version) error
	GetVersionByID(ctx context.Context, versionID string) (Version, error)
	// GetLatestVersion returns the highest-numbered version for the case,
	// optionally filtered by tier (empty tier matches any).
	GetLatestVersion(ctx context.Context, caseID, tier string) (Version, error)
	MarkVersionRunning(ctx context.Context, versionID string) error
	CompleteVersion(ctx context.Context, versionID string, result map[string]any, model string, confidence, processingMs float64, completedAt time.Time) error
	FailVersion(ctx context.Context, versionID, code, message string) error

	CreateJob(ctx context.Context, j Job) error
	GetJobByID(ctx context.Context, jobID string) (Job, error)
	// GetActiveJobByKey returns the queued or running job claiming the key, or
	// ErrNotFound when none is active.
	GetActiveJobByKey(ctx context.Context, key string) (Job, error)
	MarkJobRunning(ctx context.Context, jobID string, startedAt time.Time) error
	UpdateJobProgress(ctx context.Context, jobID string, progress int) error
	CompleteJob(ctx context.Context, jobID string, completedAt time.Time) error
	FailJob(ctx context.Context, jobID, message string, completedAt time.Time) error
	// ListAbandonedJobs returns active jobs whose last update predates the
	// cutoff; the reconciliation sweep fails them.
	ListAbandonedJobs(ctx context.Context, updatedBefore time.Time) ([]Job, error)
}

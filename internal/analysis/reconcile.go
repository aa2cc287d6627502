package analysis

import (
	"context"
	"time"

	"lexcase-backend/internal/shared/metrics"
	"lexcase-backend/internal/shared/telemetry"
)

// DefaultAbandonAfter is how long an active job may go without an update
// before the sweep declares it abandoned. It exceeds the lock TTL so a live
// worker can never be swept while it still holds its lock.
const DefaultAbandonAfter = DefaultLockTTL + 5*time.Minute

// ReconcileAbandoned fails active jobs (and their versions) whose last update
// predates now-olderThan. A worker that crashed between lock expiry and its
// terminal update leaves records stranded in QUEUED/RUNNING forever otherwise.
// Returns the number of jobs swept.
func (s *Service) ReconcileAbandoned(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = DefaultAbandonAfter
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	jobs, err := s.Repo.ListAbandonedJobs(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, job := range jobs {
		completedAt := time.Now().UTC()
		if err := s.Repo.FailVersion(ctx, job.VersionID, ErrorCodeAbandoned, "job abandoned: no terminal status before deadline"); err != nil {
			telemetry.Error("analysis.reconcile.version", map[string]any{"version_id": job.VersionID, "error": err.Error()})
		}
		if err := s.Repo.FailJob(ctx, job.ID, "job abandoned: no terminal status before deadline", completedAt); err != nil {
			telemetry.Error("analysis.reconcile.job", map[string]any{"job_id": job.ID, "error": err.Error()})
			continue
		}
		// Token-checked release: a no-op if the lock already expired or was
		// reacquired by a newer job.
		if err := s.Locks.Release(ctx, job.Key, job.LockToken); err != nil {
			telemetry.Error("analysis.reconcile.lock", map[string]any{"job_id": job.ID, "key": job.Key, "error": err.Error()})
		}
		metrics.IncJobsReconciled()
		telemetry.Info("analysis.reconcile.swept", map[string]any{
			"case_id":    job.CaseID,
			"key":        job.Key,
			"job_id":     job.ID,
			"version_id": job.VersionID,
			"updated_at": job.UpdatedAt,
		})
		swept++
	}
	return swept, nil
}

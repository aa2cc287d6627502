package analysis

import (
	"context"
	"testing"
	"time"

	"lexcase-backend/internal/cases"
)

func seedAbandonedJob(t *testing.T, repo *MemoryRepo, locks *MemoryLocker, id, key string, age time.Duration) Job {
	t.Helper()
	ctx := context.Background()

	lock, err := locks.Acquire(ctx, key, time.Hour)
	if err != nil || !lock.Acquired {
		t.Fatalf("Acquire: acquired=%v err=%v", lock.Acquired, err)
	}

	stale := time.Now().UTC().Add(-age)
	version := Version{
		ID:        "ver-" + id,
		CaseID:    "case-1",
		Version:   1,
		Tier:      TierFast,
		Key:       key,
		Status:    VersionStatusRunning,
		CreatedAt: stale,
		UpdatedAt: stale,
	}
	if err := repo.CreateVersion(ctx, version); err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}

	job := Job{
		ID:        id,
		CaseID:    "case-1",
		Key:       key,
		Tier:      TierFast,
		VersionID: version.ID,
		LockToken: lock.Token,
		Status:    JobStatusRunning,
		CreatedAt: stale,
		UpdatedAt: stale,
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestReconcileAbandonedSweeps(t *testing.T) {
	repo := NewMemoryRepo()
	locks := NewMemoryLocker()
	svc := &Service{Repo: repo, Locks: locks, Cache: NewMemoryCache(cases.NewMemoryRepo())}
	ctx := context.Background()

	job := seedAbandonedJob(t, repo, locks, "job-1", "key-1", time.Hour)

	swept, err := svc.ReconcileAbandoned(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("ReconcileAbandoned: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept job, got %d", swept)
	}

	got, err := repo.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.Status != JobStatusFailed {
		t.Fatalf("expected failed job, got %q", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Fatal("expected an abandonment message on the job")
	}

	version, err := repo.GetVersionByID(ctx, job.VersionID)
	if err != nil {
		t.Fatalf("GetVersionByID: %v", err)
	}
	if version.Status != VersionStatusFailed {
		t.Fatalf("expected failed version, got %q", version.Status)
	}
	if version.ErrorCode == nil || *version.ErrorCode != ErrorCodeAbandoned {
		t.Fatalf("unexpected error code %v", version.ErrorCode)
	}

	// The key is claimable again.
	lock, err := locks.Acquire(ctx, job.Key, time.Minute)
	if err != nil || !lock.Acquired {
		t.Fatalf("lock not released by sweep: acquired=%v err=%v", lock.Acquired, err)
	}
}

func TestReconcileAbandonedSkipsFreshJobs(t *testing.T) {
	repo := NewMemoryRepo()
	locks := NewMemoryLocker()
	svc := &Service{Repo: repo, Locks: locks}
	ctx := context.Background()

	job := seedAbandonedJob(t, repo, locks, "job-1", "key-1", time.Minute)

	swept, err := svc.ReconcileAbandoned(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("ReconcileAbandoned: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected no swept jobs, got %d", swept)
	}

	got, err := repo.GetJobByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.Status != JobStatusRunning {
		t.Fatalf("fresh job must stay running, got %q", got.Status)
	}
}

func TestReconcileAbandonedIgnoresTerminalJobs(t *testing.T) {
	repo := NewMemoryRepo()
	locks := NewMemoryLocker()
	svc := &Service{Repo: repo, Locks: locks}
	ctx := context.Background()

	job := seedAbandonedJob(t, repo, locks, "job-1", "key-1", time.Hour)
	if err := repo.CompleteJob(ctx, job.ID, time.Now().UTC()); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	swept, err := svc.ReconcileAbandoned(ctx, 15*time.Minute)
	if err != nil {
		t.Fatalf("ReconcileAbandoned: %v", err)
	}
	if swept != 0 {
		t.Fatalf("terminal jobs must not be swept, got %d", swept)
	}
}

package analysis

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo keeps the ledger in memory and is safe for concurrent use. It
// enforces the same (case, version) uniqueness as the Postgres schema so
// allocation races behave identically in tests.
type MemoryRepo struct {
	mu            sync.RWMutex
	versionsByID  map[string]Version
	versionByCase map[string]map[int]string
	jobsByID      map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		versionsByID:  make(map[string]Version),
		versionByCase: make(map[string]map[int]string),
		jobsByID:      make(map[string]Job),
	}
}

// NextVersion returns the next version number for a case, starting at 1.
func (r *MemoryRepo) NextVersion(ctx context.Context, caseID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	highest := 0
	for n := range r.versionByCase[caseID] {
		if n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// CreateVersion appends a new version row.
func (r *MemoryRepo) CreateVersion(ctx context.Context, v Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byNumber := r.versionByCase[v.CaseID]
	if byNumber == nil {
		byNumber = make(map[int]string)
		r.versionByCase[v.CaseID] = byNumber
	}
	if _, taken := byNumber[v.Version]; taken {
		return ErrVersionConflict
	}
	byNumber[v.Version] = v.ID
	r.versionsByID[v.ID] = v
	return nil
}

// GetVersionByID returns a version by its ID.
func (r *MemoryRepo) GetVersionByID(ctx context.Context, versionID string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versionsByID[versionID]
	if !ok {
		return Version{}, ErrNotFound
	}
	return v, nil
}

// GetLatestVersion returns the highest-numbered version for a case.
func (r *MemoryRepo) GetLatestVersion(ctx context.Context, caseID, tier string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest Version
	found := false
	for _, id := range r.versionByCase[caseID] {
		v := r.versionsByID[id]
		if tier != "" && v.Tier != tier {
			continue
		}
		if !found || v.Version > latest.Version {
			latest = v
			found = true
		}
	}
	if !found {
		return Version{}, ErrNotFound
	}
	return latest, nil
}

// MarkVersionRunning transitions a pending version to running.
func (r *MemoryRepo) MarkVersionRunning(ctx context.Context, versionID string) error {
	return r.updateVersion(ctx, versionID, func(v *Version) {
		v.Status = VersionStatusRunning
	})
}

// CompleteVersion persists the result payload and terminal status.
func (r *MemoryRepo) CompleteVersion(ctx context.Context, versionID string, result map[string]any, model string, confidence, processingMs float64, completedAt time.Time) error {
	return r.updateVersion(ctx, versionID, func(v *Version) {
		v.Status = VersionStatusCompleted
		v.Result = result
		if model != "" {
			v.Model = model
		}
		v.Confidence = &confidence
		v.ProcessingMs = &processingMs
		v.CompletedAt = &completedAt
	})
}

// FailVersion marks the version failed with a classified error.
func (r *MemoryRepo) FailVersion(ctx context.Context, versionID, code, message string) error {
	return r.updateVersion(ctx, versionID, func(v *Version) {
		v.Status = VersionStatusFailed
		v.ErrorCode = &code
		v.ErrorMessage = &message
		now := time.Now().UTC()
		v.CompletedAt = &now
	})
}

func (r *MemoryRepo) updateVersion(ctx context.Context, versionID string, apply func(*Version)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versionsByID[versionID]
	if !ok {
		return ErrNotFound
	}
	apply(&v)
	v.UpdatedAt = time.Now().UTC()
	r.versionsByID[versionID] = v
	return nil
}

// CreateJob stores a new job record.
func (r *MemoryRepo) CreateJob(ctx context.Context, j Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobsByID[j.ID] = j
	return nil
}

// GetJobByID returns a job by its ID.
func (r *MemoryRepo) GetJobByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobsByID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

// GetActiveJobByKey returns the queued or running job for a key.
func (r *MemoryRepo) GetActiveJobByKey(ctx context.Context, key string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.jobsByID {
		if j.Key == key && j.Active() {
			return j, nil
		}
	}
	return Job{}, ErrNotFound
}

// MarkJobRunning transitions a queued job to running.
func (r *MemoryRepo) MarkJobRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	return r.updateJob(ctx, jobID, func(j *Job) {
		j.Status = JobStatusRunning
		j.StartedAt = &startedAt
	})
}

// UpdateJobProgress records a progress checkpoint.
func (r *MemoryRepo) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	return r.updateJob(ctx, jobID, func(j *Job) {
		j.Progress = progress
	})
}

// CompleteJob marks the job completed with progress 100.
func (r *MemoryRepo) CompleteJob(ctx context.Context, jobID string, completedAt time.Time) error {
	return r.updateJob(ctx, jobID, func(j *Job) {
		j.Status = JobStatusCompleted
		j.Progress = 100
		j.CompletedAt = &completedAt
	})
}

// FailJob marks the job failed.
func (r *MemoryRepo) FailJob(ctx context.Context, jobID, message string, completedAt time.Time) error {
	return r.updateJob(ctx, jobID, func(j *Job) {
		j.Status = JobStatusFailed
		j.ErrorMessage = &message
		j.CompletedAt = &completedAt
	})
}

// ListAbandonedJobs returns active jobs not touched since the cutoff.
func (r *MemoryRepo) ListAbandonedJobs(ctx context.Context, updatedBefore time.Time) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Job
	for _, j := range r.jobsByID {
		if j.Active() && j.UpdatedAt.Before(updatedBefore) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *MemoryRepo) updateJob(ctx context.Context, jobID string, apply func(*Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobsByID[jobID]
	if !ok {
		return ErrNotFound
	}
	apply(&j)
	j.UpdatedAt = time.Now().UTC()
	r.jobsByID[jobID] = j
	return nil
}

var _ Repo = (*MemoryRepo)(nil)

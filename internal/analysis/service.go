package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lexcase-backend/internal/cases"
	"lexcase-backend/internal/credits"
	"lexcase-backend/internal/documents"
	"lexcase-backend/internal/llm"
	"lexcase-backend/internal/queue"
	"lexcase-backend/internal/shared/metrics"
	"lexcase-backend/internal/shared/telemetry"
)

const (
	stageGather   = "gather"
	stageInvoke   = "invoke"
	stageValidate = "validate"
	stagePersist  = "persist"

	progressGathered  = 25
	progressInvoked   = 50
	progressValidated = 75

	defaultLLMTimeout = 2 * time.Minute
	maxAllocAttempts  = 3
)

// Service orchestrates analysis requests: cache resolution, lock-guarded job
// creation and the background computation itself.
type Service struct {
	Repo    Repo
	Cache   Cache
	Locks   Locker
	Cases   cases.Repo
	Docs    *documents.Service
	DocRepo documents.Repo
	LLM     llm.Client
	// Queue, when set, hands jobs to an external worker instead of an
	// in-process goroutine.
	Queue   queue.Client
	Credits credits.Checker
	Model   string

	CacheTTL   time.Duration
	LockTTL    time.Duration
	LLMTimeout time.Duration
}

// RequestResult is what a caller gets back from RequestAnalysis.
type RequestResult struct {
	VersionID string `json:"versionId"`
	JobID     string `json:"jobId,omitempty"`
	Status    string `json:"status"`
	CacheHit  bool   `json:"cacheHit"`
}

// RequestAnalysis resolves a request against the cache and, on a miss, starts
// at most one background computation for the derived key. It returns quickly;
// callers poll GetVersion for completion.
func (s *Service) RequestAnalysis(ctx context.Context, caseID string, documentIDs []string, tier string) (RequestResult, error) {
	if caseID == "" {
		return RequestResult{}, errors.New("caseID is required")
	}
	if len(documentIDs) == 0 {
		return RequestResult{}, errors.New("at least one document is required")
	}
	tier = normalizeTier(tier)

	kase, err := s.Cases.GetByID(ctx, caseID)
	if err != nil {
		return RequestResult{}, fmt.Errorf("case lookup id=%s: %w", caseID, err)
	}

	if s.Credits != nil {
		ok, err := s.Credits.CanConsume(ctx, kase.WorkspaceID, 1)
		if err != nil {
			return RequestResult{}, err
		}
		if !ok {
			return RequestResult{}, ErrCreditsExhausted
		}
	}

	refs, hashes, err := s.documentRefs(ctx, caseID, documentIDs)
	if err != nil {
		return RequestResult{}, err
	}

	key := BuildKey(KeyInputs{
		DocumentHashes:  hashes,
		Model:           s.Model,
		PromptSignature: llm.PromptSignature(tier),
		MovementStamp:   cases.MovementStamp(kase.LastMovementAt),
	})

	entry, hit, err := s.Cache.Lookup(ctx, key, caseID)
	if err != nil {
		return RequestResult{}, err
	}
	if hit {
		telemetry.Info("analysis.cache.hit", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"case_id":    caseID,
			"key":        key,
			"version_id": entry.VersionID,
		})
		return RequestResult{VersionID: entry.VersionID, Status: VersionStatusCompleted, CacheHit: true}, nil
	}

	// A live job for this key means someone else is already computing it.
	if job, err := s.Repo.GetActiveJobByKey(ctx, key); err == nil {
		return RequestResult{VersionID: job.VersionID, JobID: job.ID, Status: job.Status, CacheHit: false}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return RequestResult{}, err
	}

	lock, err := s.Locks.Acquire(ctx, key, s.lockTTL())
	if err != nil || !lock.Acquired {
		if err != nil {
			telemetry.Error("analysis.lock.unavailable", map[string]any{
				"case_id": caseID,
				"key":     key,
				"error":   err.Error(),
			})
		}
		// Whoever holds the lock may have created the job record by now.
		if job, jobErr := s.Repo.GetActiveJobByKey(ctx, key); jobErr == nil {
			return RequestResult{VersionID: job.VersionID, JobID: job.ID, Status: job.Status, CacheHit: false}, nil
		}
		return RequestResult{}, ErrAnalysisInProgress
	}

	version, err := s.allocateVersion(ctx, kase, key, tier, refs)
	if err != nil {
		if relErr := s.Locks.Release(ctx, key, lock.Token); relErr != nil {
			telemetry.Error("analysis.lock.release", map[string]any{"key": key, "error": relErr.Error()})
		}
		return RequestResult{}, err
	}

	now := time.Now().UTC()
	job := Job{
		ID:          uuid.NewString(),
		CaseID:      caseID,
		WorkspaceID: kase.WorkspaceID,
		Key:         key,
		Tier:        tier,
		Documents:   refs,
		VersionID:   version.ID,
		LockToken:   lock.Token,
		Status:      JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.CreateJob(ctx, job); err != nil {
		if relErr := s.Locks.Release(ctx, key, lock.Token); relErr != nil {
			telemetry.Error("analysis.lock.release", map[string]any{"key": key, "error": relErr.Error()})
		}
		return RequestResult{}, err
	}

	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.job.created", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"case_id":    caseID,
		"key":        key,
		"job_id":     job.ID,
		"version":    version.Version,
		"tier":       tier,
	})

	s.dispatch(ctx, job)

	return RequestResult{VersionID: version.ID, JobID: job.ID, Status: JobStatusQueued, CacheHit: false}, nil
}

// GetVersion returns an analysis version by ID.
func (s *Service) GetVersion(ctx context.Context, versionID string) (Version, error) {
	if versionID == "" {
		return Version{}, errors.New("versionID is required")
	}
	return s.Repo.GetVersionByID(ctx, versionID)
}

// GetLatestVersion returns the newest version for a case, optionally by tier.
func (s *Service) GetLatestVersion(ctx context.Context, caseID, tier string) (Version, error) {
	if caseID == "" {
		return Version{}, errors.New("caseID is required")
	}
	if tier != "" {
		tier = normalizeTier(tier)
	}
	return s.Repo.GetLatestVersion(ctx, caseID, tier)
}

// GetJob returns a job by ID.
func (s *Service) GetJob(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.New("jobID is required")
	}
	return s.Repo.GetJobByID(ctx, jobID)
}

func (s *Service) documentRefs(ctx context.Context, caseID string, documentIDs []string) ([]DocumentRef, []string, error) {
	refs := make([]DocumentRef, 0, len(documentIDs))
	hashes := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, err := s.DocRepo.GetByID(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("document lookup id=%s: %w", id, err)
		}
		if doc.CaseID != caseID {
			return nil, nil, fmt.Errorf("document %s does not belong to case %s", id, caseID)
		}
		refs = append(refs, DocumentRef{ID: doc.ID, FileName: doc.FileName, ContentHash: doc.ContentHash})
		hashes = append(hashes, doc.ContentHash)
	}
	return refs, hashes, nil
}

// allocateVersion reserves the next version number, retrying when a racing key
// on the same case wins the number first.
func (s *Service) allocateVersion(ctx context.Context, kase cases.Case, key, tier string, refs []DocumentRef) (Version, error) {
	var lastErr error
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		number, err := s.Repo.NextVersion(ctx, kase.ID)
		if err != nil {
			return Version{}, err
		}
		now := time.Now().UTC()
		version := Version{
			ID:          uuid.NewString(),
			CaseID:      kase.ID,
			WorkspaceID: kase.WorkspaceID,
			Version:     number,
			Tier:        tier,
			Model:       s.Model,
			Key:         key,
			Documents:   refs,
			Status:      VersionStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = s.Repo.CreateVersion(ctx, version)
		if err == nil {
			return version, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Version{}, err
		}
		lastErr = err
	}
	return Version{}, fmt.Errorf("version allocation case=%s: %w", kase.ID, lastErr)
}

func (s *Service) dispatch(ctx context.Context, job Job) {
	if s.Queue != nil {
		msg := queue.Message{
			JobID:      job.ID,
			RequestID:  requestIDFromContext(ctx),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    queue.MessageVersion,
		}
		if err := s.Queue.Send(ctx, msg); err == nil {
			return
		} else {
			telemetry.Error("analysis.queue.send", map[string]any{
				"job_id": job.ID,
				"error":  err.Error(),
			})
			// Fall through to in-process execution rather than stranding the
			// job in QUEUED with the lock held.
		}
	}
	go func(jobID string) {
		if err := s.ProcessJob(backgroundWithRequestID(ctx), jobID); err != nil {
			telemetry.Error("analysis.job.process", map[string]any{"job_id": jobID, "error": sanitizeError(err)})
		}
	}(job.ID)
}

// ProcessJob runs the background computation for a job. It is idempotent for
// terminal jobs, making queue redelivery safe. The job's lock is released on
// every exit path.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.Repo.GetJobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job lookup id=%s: %w", jobID, err)
	}
	if !job.Active() {
		return nil
	}

	defer func() {
		if err := s.Locks.Release(context.Background(), job.Key, job.LockToken); err != nil {
			telemetry.Error("analysis.lock.release", map[string]any{
				"job_id": job.ID,
				"key":    job.Key,
				"error":  err.Error(),
			})
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			s.failJob(ctx, job, stagePersist, fmt.Errorf("panic: %v", r), nil)
		}
	}()

	startedAt := time.Now().UTC()
	if err := s.Repo.MarkJobRunning(ctx, job.ID, startedAt); err != nil {
		s.failJob(ctx, job, stageGather, fmt.Errorf("set running failed: %w", err), &startedAt)
		return nil
	}
	if err := s.Repo.MarkVersionRunning(ctx, job.VersionID); err != nil {
		s.failJob(ctx, job, stageGather, fmt.Errorf("set version running failed: %w", err), &startedAt)
		return nil
	}
	s.logTransition(ctx, job, "queued->running", nil)

	input, err := s.gatherInputs(ctx, job)
	if err != nil {
		s.failJob(ctx, job, stageGather, err, &startedAt)
		return nil
	}
	s.progress(ctx, job, progressGathered)

	llmCtx, cancel := context.WithTimeout(ctx, s.llmTimeout())
	raw, err := s.LLM.AnalyzeCase(llmCtx, input)
	cancel()
	if err != nil {
		s.failJob(ctx, job, stageInvoke, fmt.Errorf("llm analyze: %w", err), &startedAt)
		return nil
	}
	s.progress(ctx, job, progressInvoked)

	result, err := validateResult(raw)
	if err != nil {
		s.failJob(ctx, job, stageValidate, err, &startedAt)
		return nil
	}
	s.progress(ctx, job, progressValidated)

	payload, err := resultPayload(result)
	if err != nil {
		s.failJob(ctx, job, stagePersist, fmt.Errorf("result payload: %w", err), &startedAt)
		return nil
	}

	completedAt := time.Now().UTC()
	processingMs := durationMs(&startedAt, &completedAt)
	confidence := result.ConfidenceOrDefault()
	if err := s.Repo.CompleteVersion(ctx, job.VersionID, payload, s.Model, confidence, processingMs, completedAt); err != nil {
		s.failJob(ctx, job, stagePersist, fmt.Errorf("set version result failed: %w", err), &startedAt)
		return nil
	}
	if err := s.Repo.CompleteJob(ctx, job.ID, completedAt); err != nil {
		s.failJob(ctx, job, stagePersist, fmt.Errorf("set job completed failed: %w", err), &startedAt)
		return nil
	}

	s.writeCache(ctx, job)

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(processingMs)
	s.logTransition(ctx, job, "running->completed", map[string]any{
		"duration_ms": processingMs,
		"confidence":  confidence,
	})
	return nil
}

func (s *Service) gatherInputs(ctx context.Context, job Job) (llm.AnalyzeInput, error) {
	kase, err := s.Cases.GetByID(ctx, job.CaseID)
	if err != nil {
		return llm.AnalyzeInput{}, fmt.Errorf("case lookup id=%s: %w", job.CaseID, err)
	}

	texts := make([]llm.DocumentText, 0, len(job.Documents))
	for _, ref := range job.Documents {
		text, err := s.Docs.TextForAnalysis(ctx, ref.ID)
		if err != nil {
			return llm.AnalyzeInput{}, fmt.Errorf("document text id=%s: %w", ref.ID, err)
		}
		texts = append(texts, llm.DocumentText{FileName: ref.FileName, Text: text})
	}

	return llm.AnalyzeInput{
		CaseTitle:      kase.Title,
		Court:          kase.Court,
		DocketNumber:   kase.DocketNumber,
		PartiesSummary: kase.PartiesSummary,
		Subject:        kase.Subject,
		Documents:      texts,
		Tier:           job.Tier,
	}, nil
}

// writeCache stores the completed version for reuse. Failures are logged, not
// fatal: the result is already persisted, reuse is best-effort.
func (s *Service) writeCache(ctx context.Context, job Job) {
	movedAt, err := s.Cases.LatestMovementAt(ctx, job.CaseID)
	if err != nil {
		telemetry.Error("analysis.cache.write", map[string]any{"key": job.Key, "error": err.Error()})
		return
	}
	entry := CacheEntry{
		Key:        job.Key,
		VersionID:  job.VersionID,
		MovementAt: cases.MovementStamp(movedAt),
	}
	if err := s.Cache.Write(ctx, entry, s.cacheTTL()); err != nil {
		telemetry.Error("analysis.cache.write", map[string]any{"key": job.Key, "error": err.Error()})
	}
}

func (s *Service) progress(ctx context.Context, job Job, pct int) {
	if err := s.Repo.UpdateJobProgress(ctx, job.ID, pct); err != nil {
		telemetry.Error("analysis.job.progress", map[string]any{
			"job_id":   job.ID,
			"progress": pct,
			"error":    err.Error(),
		})
	}
}

func (s *Service) failJob(ctx context.Context, job Job, stage string, err error, startedAt *time.Time) {
	code := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := time.Now().UTC()

	// Terminal updates use a fresh context so a canceled request context
	// cannot abandon the records mid-transition.
	bg := context.Background()
	if updateErr := s.Repo.FailVersion(bg, job.VersionID, code, msg); updateErr != nil {
		telemetry.Error("analysis.version.fail", map[string]any{"version_id": job.VersionID, "error": updateErr.Error()})
	}
	if updateErr := s.Repo.FailJob(bg, job.ID, msg, completedAt); updateErr != nil {
		telemetry.Error("analysis.job.fail", map[string]any{"job_id": job.ID, "error": updateErr.Error()})
	}

	metrics.IncAnalysisFailed()
	if startedAt != nil {
		metrics.ObserveAnalysisDurationMs(durationMs(startedAt, &completedAt))
	}
	s.logTransition(ctx, job, "running->failed", map[string]any{
		"stage":      stage,
		"error_code": code,
		"error":      msg,
	})
}

func (s *Service) logTransition(ctx context.Context, job Job, transition string, extra map[string]any) {
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"case_id":           job.CaseID,
		"key":               job.Key,
		"job_id":            job.ID,
		"version_id":        job.VersionID,
		"status_transition": transition,
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info("analysis.status", fields)
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return DefaultLockTTL
}

func (s *Service) cacheTTL() time.Duration {
	if s.CacheTTL > 0 {
		return s.CacheTTL
	}
	return DefaultCacheTTL
}

func (s *Service) llmTimeout() time.Duration {
	if s.LLMTimeout > 0 {
		return s.LLMTimeout
	}
	return defaultLLMTimeout
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeLLMTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "openai request timeout") || (strings.Contains(msg, "timeout") && strings.Contains(msg, "llm")) {
		return ErrorCodeLLMTimeout
	}
	if strings.Contains(msg, "schema") || strings.Contains(msg, "llm output") {
		return ErrorCodeLLMSchemaMismatch
	}
	if strings.Contains(msg, "llm analyze") || strings.Contains(msg, "openai") {
		return ErrorCodeProvider
	}
	if strings.Contains(msg, "validation") {
		return ErrorCodeValidation
	}
	if strings.Contains(msg, "document") || strings.Contains(msg, "case lookup") || strings.Contains(msg, "storage") || strings.Contains(msg, "set running") || strings.Contains(msg, "set version") || strings.Contains(msg, "set job") {
		return ErrorCodeStorage
	}
	return ErrorCodeInternal
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

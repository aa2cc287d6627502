package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func marshalJSONB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// NextVersion reads the highest version for the case and returns +1.
func (r *PGRepo) NextVersion(ctx context.Context, caseID string) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM analysis_versions WHERE case_id = $1`
	var highest int
	if err := r.DB.QueryRowContext(ctx, query, caseID).Scan(&highest); err != nil {
		return 0, err
	}
	return highest + 1, nil
}

// CreateVersion inserts a new pending version. The unique index on
// (case_id, version) turns allocation races into ErrVersionConflict.
func (r *PGRepo) CreateVersion(ctx context.Context, v Version) error {
	const query = `
INSERT INTO analysis_versions (
	id, case_id, workspace_id, version, tier, model, analysis_key, documents,
	status, result, confidence, processing_ms, error_code, error_message,
	created_at, updated_at, completed_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	docsPayload, err := marshalJSONB(v.Documents)
	if err != nil {
		return err
	}
	resultPayload, err := marshalJSONB(v.Result)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = r.DB.ExecContext(ctx, query,
		v.ID,
		v.CaseID,
		v.WorkspaceID,
		v.Version,
		v.Tier,
		v.Model,
		v.Key,
		docsPayload,
		v.Status,
		resultPayload,
		v.Confidence,
		v.ProcessingMs,
		v.ErrorCode,
		v.ErrorMessage,
		createdAt,
		now,
		v.CompletedAt,
	)
	if isUniqueViolation(err) {
		return ErrVersionConflict
	}
	return err
}

const versionColumns = `
id, case_id, workspace_id, version, tier, model, analysis_key, documents,
status, result, confidence, processing_ms, error_code, error_message,
created_at, updated_at, completed_at`

// GetVersionByID returns a version by ID.
func (r *PGRepo) GetVersionByID(ctx context.Context, versionID string) (Version, error) {
	query := `SELECT ` + versionColumns + ` FROM analysis_versions WHERE id = $1 LIMIT 1`
	return scanVersion(r.DB.QueryRowContext(ctx, query, versionID))
}

// GetLatestVersion returns the highest-numbered version for a case, optionally
// filtered by tier.
func (r *PGRepo) GetLatestVersion(ctx context.Context, caseID, tier string) (Version, error) {
	if tier == "" {
		query := `SELECT ` + versionColumns + ` FROM analysis_versions WHERE case_id = $1 ORDER BY version DESC LIMIT 1`
		return scanVersion(r.DB.QueryRowContext(ctx, query, caseID))
	}
	query := `SELECT ` + versionColumns + ` FROM analysis_versions WHERE case_id = $1 AND tier = $2 ORDER BY version DESC LIMIT 1`
	return scanVersion(r.DB.QueryRowContext(ctx, query, caseID, tier))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (Version, error) {
	var v Version
	var documents, result sql.NullString
	var confidence, processingMs sql.NullFloat64
	var errorCode, errorMessage sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&v.ID,
		&v.CaseID,
		&v.WorkspaceID,
		&v.Version,
		&v.Tier,
		&v.Model,
		&v.Key,
		&documents,
		&v.Status,
		&result,
		&confidence,
		&processingMs,
		&errorCode,
		&errorMessage,
		&v.CreatedAt,
		&v.UpdatedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, err
	}
	if documents.Valid && documents.String != "" {
		if err := json.Unmarshal([]byte(documents.String), &v.Documents); err != nil {
			return Version{}, err
		}
	}
	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &v.Result); err != nil {
			return Version{}, err
		}
	}
	if confidence.Valid {
		v.Confidence = &confidence.Float64
	}
	if processingMs.Valid {
		v.ProcessingMs = &processingMs.Float64
	}
	if errorCode.Valid {
		v.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		v.ErrorMessage = &errorMessage.String
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		v.CompletedAt = &t
	}
	return v, nil
}

// MarkVersionRunning transitions a pending version to running.
func (r *PGRepo) MarkVersionRunning(ctx context.Context, versionID string) error {
	const query = `UPDATE analysis_versions SET status = $2, updated_at = $3 WHERE id = $1`
	return r.execExpectingRow(ctx, query, versionID, VersionStatusRunning, time.Now().UTC())
}

// CompleteVersion persists the validated result and terminal status.
func (r *PGRepo) CompleteVersion(ctx context.Context, versionID string, result map[string]any, model string, confidence, processingMs float64, completedAt time.Time) error {
	const query = `
UPDATE analysis_versions
SET status = $2, result = $3, model = COALESCE(NULLIF($4, ''), model),
    confidence = $5, processing_ms = $6, completed_at = $7, updated_at = $8
WHERE id = $1`
	resultPayload, err := marshalJSONB(result)
	if err != nil {
		return err
	}
	return r.execExpectingRow(ctx, query, versionID, VersionStatusCompleted, resultPayload, model, confidence, processingMs, completedAt.UTC(), time.Now().UTC())
}

// FailVersion marks the version failed with a classified error.
func (r *PGRepo) FailVersion(ctx context.Context, versionID, code, message string) error {
	const query = `
UPDATE analysis_versions
SET status = $2, error_code = $3, error_message = $4, completed_at = $5, updated_at = $5
WHERE id = $1`
	return r.execExpectingRow(ctx, query, versionID, VersionStatusFailed, code, message, time.Now().UTC())
}

// CreateJob inserts a new job record.
func (r *PGRepo) CreateJob(ctx context.Context, j Job) error {
	const query = `
INSERT INTO analysis_jobs (
	id, case_id, workspace_id, analysis_key, tier, documents, version_id,
	lock_token, status, progress, error_message, created_at, updated_at,
	started_at, completed_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	docsPayload, err := marshalJSONB(j.Documents)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = r.DB.ExecContext(ctx, query,
		j.ID,
		j.CaseID,
		j.WorkspaceID,
		j.Key,
		j.Tier,
		docsPayload,
		j.VersionID,
		j.LockToken,
		j.Status,
		j.Progress,
		j.ErrorMessage,
		createdAt,
		now,
		j.StartedAt,
		j.CompletedAt,
	)
	return err
}

const jobColumns = `
id, case_id, workspace_id, analysis_key, tier, documents, version_id,
lock_token, status, progress, error_message, created_at, updated_at,
started_at, completed_at`

// GetJobByID returns a job by ID.
func (r *PGRepo) GetJobByID(ctx context.Context, jobID string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = $1 LIMIT 1`
	return scanJob(r.DB.QueryRowContext(ctx, query, jobID))
}

// GetActiveJobByKey returns the queued or running job claiming the key.
func (r *PGRepo) GetActiveJobByKey(ctx context.Context, key string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE analysis_key = $1 AND status IN ($2, $3) ORDER BY created_at DESC LIMIT 1`
	return scanJob(r.DB.QueryRowContext(ctx, query, key, JobStatusQueued, JobStatusRunning))
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var documents sql.NullString
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID,
		&j.CaseID,
		&j.WorkspaceID,
		&j.Key,
		&j.Tier,
		&documents,
		&j.VersionID,
		&j.LockToken,
		&j.Status,
		&j.Progress,
		&errorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	if documents.Valid && documents.String != "" {
		if err := json.Unmarshal([]byte(documents.String), &j.Documents); err != nil {
			return Job{}, err
		}
	}
	if errorMessage.Valid {
		j.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		j.CompletedAt = &t
	}
	return j, nil
}

// MarkJobRunning transitions a queued job to running.
func (r *PGRepo) MarkJobRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	const query = `UPDATE analysis_jobs SET status = $2, started_at = $3, updated_at = $4 WHERE id = $1`
	return r.execExpectingRow(ctx, query, jobID, JobStatusRunning, startedAt.UTC(), time.Now().UTC())
}

// UpdateJobProgress records a progress checkpoint.
func (r *PGRepo) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	const query = `UPDATE analysis_jobs SET progress = $2, updated_at = $3 WHERE id = $1`
	return r.execExpectingRow(ctx, query, jobID, progress, time.Now().UTC())
}

// CompleteJob marks the job completed with progress 100.
func (r *PGRepo) CompleteJob(ctx context.Context, jobID string, completedAt time.Time) error {
	const query = `UPDATE analysis_jobs SET status = $2, progress = 100, completed_at = $3, updated_at = $4 WHERE id = $1`
	return r.execExpectingRow(ctx, query, jobID, JobStatusCompleted, completedAt.UTC(), time.Now().UTC())
}

// FailJob marks the job failed.
func (r *PGRepo) FailJob(ctx context.Context, jobID, message string, completedAt time.Time) error {
	const query = `UPDATE analysis_jobs SET status = $2, error_message = $3, completed_at = $4, updated_at = $5 WHERE id = $1`
	return r.execExpectingRow(ctx, query, jobID, JobStatusFailed, message, completedAt.UTC(), time.Now().UTC())
}

// ListAbandonedJobs returns active jobs whose last update predates the cutoff.
func (r *PGRepo) ListAbandonedJobs(ctx context.Context, updatedBefore time.Time) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE status IN ($1, $2) AND updated_at < $3 ORDER BY updated_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, JobStatusQueued, JobStatusRunning, updatedBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *PGRepo) execExpectingRow(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)

package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newPGRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreateVersionConflict(t *testing.T) {
	repo, mock := newPGRepo(t)

	mock.ExpectExec("INSERT INTO analysis_versions").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_analysis_versions_case_version"})

	err := repo.CreateVersion(context.Background(), Version{
		ID:      "ver-1",
		CaseID:  "case-1",
		Version: 3,
		Tier:    TierFast,
		Status:  VersionStatusPending,
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateVersionOtherError(t *testing.T) {
	repo, mock := newPGRepo(t)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO analysis_versions").WillReturnError(boom)

	err := repo.CreateVersion(context.Background(), Version{ID: "ver-1", CaseID: "case-1", Version: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if errors.Is(err, ErrVersionConflict) {
		t.Fatal("non-unique errors must not map to ErrVersionConflict")
	}
}

func TestPGRepoNextVersion(t *testing.T) {
	repo, mock := newPGRepo(t)

	rows := sqlmock.NewRows([]string{"coalesce"}).AddRow(4)
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) FROM analysis_versions").
		WithArgs("case-1").
		WillReturnRows(rows)

	next, err := repo.NextVersion(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("NextVersion: %v", err)
	}
	if next != 5 {
		t.Fatalf("expected 5, got %d", next)
	}
}

func TestPGRepoGetVersionByIDNotFound(t *testing.T) {
	repo, mock := newPGRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM analysis_versions WHERE id").
		WithArgs("ver-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetVersionByID(context.Background(), "ver-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoGetVersionByID(t *testing.T) {
	repo, mock := newPGRepo(t)

	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	completed := created.Add(30 * time.Second)
	rows := sqlmock.NewRows([]string{
		"id", "case_id", "workspace_id", "version", "tier", "model", "analysis_key", "documents",
		"status", "result", "confidence", "processing_ms", "error_code", "error_message",
		"created_at", "updated_at", "completed_at",
	}).AddRow(
		"ver-1", "case-1", "ws-1", 2, TierFull, "gpt-5-mini", "key-1",
		`[{"id":"doc-1","fileName":"complaint.pdf","contentHash":"abc"}]`,
		VersionStatusCompleted, `{"summary":"ok"}`, 0.92, 1234.5, nil, nil,
		created, completed, completed,
	)
	mock.ExpectQuery("SELECT (.+) FROM analysis_versions WHERE id").
		WithArgs("ver-1").
		WillReturnRows(rows)

	v, err := repo.GetVersionByID(context.Background(), "ver-1")
	if err != nil {
		t.Fatalf("GetVersionByID: %v", err)
	}
	if v.Version != 2 || v.Status != VersionStatusCompleted {
		t.Fatalf("unexpected version %+v", v)
	}
	if len(v.Documents) != 1 || v.Documents[0].ID != "doc-1" {
		t.Fatalf("documents not decoded: %+v", v.Documents)
	}
	if v.Result["summary"] != "ok" {
		t.Fatalf("result not decoded: %+v", v.Result)
	}
	if v.Confidence == nil || *v.Confidence != 0.92 {
		t.Fatalf("confidence not decoded: %v", v.Confidence)
	}
	if v.ErrorCode != nil {
		t.Fatalf("expected nil error code, got %v", *v.ErrorCode)
	}
	if v.CompletedAt == nil || !v.CompletedAt.Equal(completed) {
		t.Fatalf("completedAt not decoded: %v", v.CompletedAt)
	}
}

func TestPGRepoGetActiveJobByKeyNotFound(t *testing.T) {
	repo, mock := newPGRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM analysis_jobs").
		WithArgs("key-1", JobStatusQueued, JobStatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetActiveJobByKey(context.Background(), "key-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoMarkVersionRunningMissingRow(t *testing.T) {
	repo, mock := newPGRepo(t)

	mock.ExpectExec("UPDATE analysis_versions").
		WithArgs("ver-missing", VersionStatusRunning, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkVersionRunning(context.Background(), "ver-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdateJobProgress(t *testing.T) {
	repo, mock := newPGRepo(t)

	mock.ExpectExec("UPDATE analysis_jobs").
		WithArgs("job-1", 50, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateJobProgress(context.Background(), "job-1", 50); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

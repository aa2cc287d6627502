package analysis

import "time"

const (
	VersionStatusPending   = "pending"
	VersionStatusRunning   = "running"
	VersionStatusCompleted = "completed"
	VersionStatusFailed    = "failed"

	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"

	TierFast = "fast"
	TierFull = "full"
)

// DocumentRef is the snapshot of an input document captured when a version is created.
type DocumentRef struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	ContentHash string `json:"contentHash"`
}

// Version is an immutable, per-case analysis attempt. Rows are append-only;
// only status and result fields transition after creation.
type Version struct {
	ID           string         `json:"id"`
	CaseID       string         `json:"caseId"`
	WorkspaceID  string         `json:"workspaceId"`
	Version      int            `json:"version"`
	Tier         string         `json:"tier"`
	Model        string         `json:"model"`
	Key          string         `json:"key"`
	Documents    []DocumentRef  `json:"documents"`
	Status       string         `json:"status"`
	Result       map[string]any `json:"result,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	ProcessingMs *float64       `json:"processingMs,omitempty"`
	ErrorCode    *string        `json:"errorCode,omitempty"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}

// Job coordinates one in-flight computation for a key. At most one job may be
// active per key at any time.
type Job struct {
	ID           string        `json:"id"`
	CaseID       string        `json:"caseId"`
	WorkspaceID  string        `json:"workspaceId"`
	Key          string        `json:"key"`
	Tier         string        `json:"tier"`
	Documents    []DocumentRef `json:"documents"`
	VersionID    string        `json:"versionId"`
	LockToken    string        `json:"-"`
	Status       string        `json:"status"`
	Progress     int           `json:"progress"`
	ErrorMessage *string       `json:"errorMessage,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
}

// Active reports whether the job still claims its key.
func (j Job) Active() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusRunning
}

// CacheEntry maps an analysis key to a completed version, with freshness metadata.
type CacheEntry struct {
	Key          string    `json:"key"`
	VersionID    string    `json:"versionId"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	AccessCount  int64     `json:"accessCount"`
	LastAccessAt time.Time `json:"lastAccessAt"`
	// MovementAt is the case's movement stamp observed when the entry was
	// written; a newer movement invalidates the entry even for an unchanged key.
	MovementAt string `json:"movementAt"`
}

func normalizeTier(tier string) string {
	switch tier {
	case TierFull:
		return TierFull
	default:
		return TierFast
	}
}

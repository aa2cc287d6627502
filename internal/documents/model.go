package documents

import "time"

const (
	ExtractStatusPending = "pending"
	ExtractStatusDone    = "done"
	ExtractStatusFailed  = "failed"
)

// ExtractFailedPlaceholder stands in for a document whose text could not be
// extracted; analysis proceeds with it rather than aborting the whole job.
const ExtractFailedPlaceholder = "[document text unavailable: extraction failed]"

// Document represents a stored case document.
type Document struct {
	ID               string
	CaseID           string
	WorkspaceID      string
	FileName         string
	MimeType         string
	SizeBytes        int64
	StorageKey       string
	ContentHash      string
	ExtractedTextKey string
	ExtractStatus    string
	ExtractedAt      *time.Time
	CreatedAt        time.Time
}

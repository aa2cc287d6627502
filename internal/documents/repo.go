package documents

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Repo defines persistence operations for case documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, documentID string) (Document, error)
	ListByCase(ctx context.Context, caseID string) ([]Document, error)
	UpdateExtraction(ctx context.Context, documentID, extractedTextKey, status string, extractedAt time.Time) error
}

package documents

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const docColumns = `
id, case_id, workspace_id, file_name, mime_type, size_bytes, storage_key,
content_hash, extracted_text_key, extract_status, extracted_at, created_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO case_documents (
	id, case_id, workspace_id, file_name, mime_type, size_bytes, storage_key,
	content_hash, extracted_text_key, extract_status, extracted_at, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := doc.ExtractStatus
	if status == "" {
		status = ExtractStatusPending
	}
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.CaseID,
		doc.WorkspaceID,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.StorageKey,
		doc.ContentHash,
		doc.ExtractedTextKey,
		status,
		doc.ExtractedAt,
		createdAt,
	)
	return err
}

// GetByID returns a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	query := `SELECT ` + docColumns + ` FROM case_documents WHERE id = $1 LIMIT 1`
	return scanDocument(r.DB.QueryRowContext(ctx, query, documentID))
}

// ListByCase returns all documents for a case, oldest first.
func (r *PGRepo) ListByCase(ctx context.Context, caseID string) ([]Document, error) {
	query := `SELECT ` + docColumns + ` FROM case_documents WHERE case_id = $1 ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// UpdateExtraction records the outcome of a text extraction attempt.
func (r *PGRepo) UpdateExtraction(ctx context.Context, documentID, extractedTextKey, status string, extractedAt time.Time) error {
	const query = `
UPDATE case_documents
SET extracted_text_key = $2, extract_status = $3, extracted_at = $4
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, documentID, extractedTextKey, status, extractedAt.UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var extractedTextKey sql.NullString
	var extractedAt sql.NullTime
	err := row.Scan(
		&doc.ID,
		&doc.CaseID,
		&doc.WorkspaceID,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StorageKey,
		&doc.ContentHash,
		&extractedTextKey,
		&doc.ExtractStatus,
		&extractedAt,
		&doc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if extractedTextKey.Valid {
		doc.ExtractedTextKey = extractedTextKey.String
	}
	if extractedAt.Valid {
		t := extractedAt.Time.UTC()
		doc.ExtractedAt = &t
	}
	return doc, nil
}

var _ Repo = (*PGRepo)(nil)

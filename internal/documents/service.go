package documents

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"lexcase-backend/internal/extract"
	"lexcase-backend/internal/shared/storage/object"
	"lexcase-backend/internal/shared/telemetry"
)

// Service contains business logic for case documents.
type Service struct {
	Repo  Repo
	Store object.ObjectStore
}

// Ingest stores the payload, content-hashes it and creates the document row.
func (s *Service) Ingest(ctx context.Context, caseID, workspaceID, fileName string, r io.Reader) (Document, error) {
	if caseID == "" || fileName == "" {
		return Document{}, fmt.Errorf("caseID and fileName are required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read document payload: %w", err)
	}
	sum := sha256.Sum256(data)

	storageKey, size, mimeType, err := s.Store.Save(ctx, caseID, fileName, bytes.NewReader(data))
	if err != nil {
		return Document{}, fmt.Errorf("store document: %w", err)
	}

	doc := Document{
		ID:            uuid.NewString(),
		CaseID:        caseID,
		WorkspaceID:   workspaceID,
		FileName:      fileName,
		MimeType:      mimeType,
		SizeBytes:     size,
		StorageKey:    storageKey,
		ContentHash:   hex.EncodeToString(sum[:]),
		ExtractStatus: ExtractStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// TextForAnalysis returns the document's extracted text, extracting on first
// use. When extraction fails the document is marked failed and a placeholder
// is returned so an analysis over many documents degrades instead of aborting.
func (s *Service) TextForAnalysis(ctx context.Context, documentID string) (string, error) {
	doc, err := s.Repo.GetByID(ctx, documentID)
	if err != nil {
		return "", err
	}

	if doc.ExtractStatus == ExtractStatusFailed {
		return ExtractFailedPlaceholder, nil
	}

	if doc.ExtractedTextKey == "" {
		text, err := extract.ExtractText(ctx, s.Store, doc.StorageKey, doc.MimeType, doc.FileName)
		if err != nil {
			telemetry.Error("document.extract.failed", map[string]any{
				"document_id": doc.ID,
				"case_id":     doc.CaseID,
				"mime_type":   doc.MimeType,
				"error":       err.Error(),
			})
			if updateErr := s.Repo.UpdateExtraction(ctx, doc.ID, "", ExtractStatusFailed, time.Now().UTC()); updateErr != nil {
				return "", updateErr
			}
			return ExtractFailedPlaceholder, nil
		}
		extractedKey := doc.StorageKey + ".extracted.txt"
		if _, err := s.Store.SaveWithKey(ctx, extractedKey, "text/plain; charset=utf-8", bytes.NewReader([]byte(text))); err != nil {
			return "", fmt.Errorf("document %s: store extracted text: %w", doc.ID, err)
		}
		if err := s.Repo.UpdateExtraction(ctx, doc.ID, extractedKey, ExtractStatusDone, time.Now().UTC()); err != nil {
			return "", fmt.Errorf("document %s: update extraction: %w", doc.ID, err)
		}
		return text, nil
	}

	body, err := s.Store.Open(ctx, doc.ExtractedTextKey)
	if err != nil {
		return "", fmt.Errorf("document %s: open extracted text: %w", doc.ID, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("document %s: read extracted text: %w", doc.ID, err)
	}
	return string(data), nil
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts LLM providers for case analysis.
type Client interface {
	AnalyzeCase(ctx context.Context, input AnalyzeInput) (json.RawMessage, error)
}

// DocumentText is one document's extracted text as fed to the prompt.
type DocumentText struct {
	FileName string
	Text     string
}

// AnalyzeInput captures the inputs needed for a case analysis.
type AnalyzeInput struct {
	CaseTitle      string
	Court          string
	DocketNumber   string
	PartiesSummary string
	Subject        string
	Documents      []DocumentText
	Tier           string
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// AnalyzeCase returns ErrNotImplemented.
func (PlaceholderClient) AnalyzeCase(ctx context.Context, input AnalyzeInput) (json.RawMessage, error) {
	_ = ctx
	_ = input
	return nil, ErrNotImplemented
}

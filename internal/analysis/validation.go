package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// validateResult parses the raw provider response into the typed schema. No
// field of a response that fails here may be persisted; the job fails with a
// schema-mismatch error instead.
func validateResult(raw json.RawMessage) (CaseAnalysisResult, error) {
	var parsed CaseAnalysisResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CaseAnalysisResult{}, fmt.Errorf("llm output parse: %w", err)
	}
	if err := parsed.Validate(); err != nil {
		return CaseAnalysisResult{}, fmt.Errorf("llm output invalid: %w", err)
	}
	return parsed, nil
}

// Validate checks required fields and value ranges.
func (r CaseAnalysisResult) Validate() error {
	var problems []string
	if strings.TrimSpace(r.Summary) == "" {
		problems = append(problems, "summary is empty")
	}
	if len(r.KeyPoints) == 0 {
		problems = append(problems, "keyPoints is empty")
	}
	switch r.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
	case "":
		problems = append(problems, "riskLevel is missing")
	default:
		problems = append(problems, fmt.Sprintf("riskLevel %q is not one of low/medium/high/critical", r.RiskLevel))
	}
	if len(r.Recommendations) == 0 {
		problems = append(problems, "recommendations is empty")
	}
	for i, ev := range r.Timeline {
		if strings.TrimSpace(ev.Event) == "" {
			problems = append(problems, fmt.Sprintf("timeline[%d].event is empty", i))
		}
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		problems = append(problems, fmt.Sprintf("confidence %v outside [0,1]", *r.Confidence))
	}
	if len(problems) > 0 {
		return fmt.Errorf("schema: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ConfidenceOrDefault returns the provider confidence, falling back when absent.
func (r CaseAnalysisResult) ConfidenceOrDefault() float64 {
	if r.Confidence != nil {
		return *r.Confidence
	}
	return DefaultConfidence
}

// resultPayload flattens the typed result back to the map shape the ledger stores.
func resultPayload(r CaseAnalysisResult) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

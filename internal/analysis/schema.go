package analysis

// JSON schema requested from the model:
// {
//   "summary": "string",
//   "keyPoints": ["string"],
//   "strengths": ["string"],
//   "weaknesses": ["string"],
//   "riskLevel": "low | medium | high | critical",
//   "timeline": [{"date": "string", "event": "string"}],
//   "recommendations": ["string"],
//   "confidence": "number (0-1, optional)"
// }
type CaseAnalysisResult struct {
	Summary         string          `json:"summary"`
	KeyPoints       []string        `json:"keyPoints"`
	Strengths       []string        `json:"strengths"`
	Weaknesses      []string        `json:"weaknesses"`
	RiskLevel       RiskLevel       `json:"riskLevel"`
	Timeline        []TimelineEvent `json:"timeline"`
	Recommendations []string        `json:"recommendations"`
	Confidence      *float64        `json:"confidence,omitempty"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type TimelineEvent struct {
	Date  string `json:"date"`
	Event string `json:"event"`
}

// DefaultConfidence is used when the provider omits a confidence score.
const DefaultConfidence = 0.85

package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const systemPrompt = "You are a legal case analysis engine. Respond with JSON only. No markdown. Never omit keys. Output must match the schema exactly."

const resultSchemaPrompt = `Return a single JSON object with exactly these keys:
{
  "summary": "concise assessment of the case as a whole",
  "keyPoints": ["the facts and filings that matter most"],
  "strengths": ["arguments and evidence favoring the client"],
  "weaknesses": ["exposure, gaps and adverse findings"],
  "riskLevel": "low | medium | high | critical",
  "timeline": [{"date": "YYYY-MM-DD or free text", "event": "what happened"}],
  "recommendations": ["concrete next steps, ordered by priority"],
  "confidence": 0.0
}`

const tierFastPrompt = `Analysis depth: FAST. Summarize from the documents provided without exhaustive cross-referencing. Keep keyPoints to at most 5 items and recommendations to at most 3.`

const tierFullPrompt = `Analysis depth: FULL. Cross-reference every document, reconstruct the complete procedural timeline, and weigh each party's position. Be thorough in strengths, weaknesses and recommendations.`

func tierPrompt(tier string) string {
	if tier == "full" {
		return tierFullPrompt
	}
	return tierFastPrompt
}

// BuildMessages assembles the chat messages for an analysis request.
func BuildMessages(input AnalyzeInput) []Message {
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "developer", Content: resultSchemaPrompt + "\n\n" + tierPrompt(input.Tier)},
		{Role: "user", Content: buildUserPrompt(input)},
	}
}

// Message represents a provider-agnostic chat message.
type Message struct {
	Role    string
	Content string
}

func buildUserPrompt(input AnalyzeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Case: %s\n", valueOrNA(input.CaseTitle))
	fmt.Fprintf(&b, "Court: %s\n", valueOrNA(input.Court))
	fmt.Fprintf(&b, "Docket: %s\n", valueOrNA(input.DocketNumber))
	fmt.Fprintf(&b, "Parties: %s\n", valueOrNA(input.PartiesSummary))
	fmt.Fprintf(&b, "Subject: %s\n", valueOrNA(input.Subject))
	for i, doc := range input.Documents {
		fmt.Fprintf(&b, "\n--- Document %d: %s ---\n%s\n", i+1, doc.FileName, doc.Text)
	}
	return b.String()
}

func valueOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// PromptSignature hashes the prompt templates for a tier. It feeds key
// derivation so editing a template invalidates previously cached analyses.
func PromptSignature(tier string) string {
	payload := systemPrompt + "\n" + resultSchemaPrompt + "\n" + tierPrompt(tier)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

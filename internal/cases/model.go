package cases

import "time"

// Case holds the metadata the analysis engine needs about a legal case.
type Case struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspaceId"`
	Title          string     `json:"title"`
	Court          string     `json:"court"`
	DocketNumber   string     `json:"docketNumber"`
	PartiesSummary string     `json:"partiesSummary"`
	Subject        string     `json:"subject"`
	LastMovementAt *time.Time `json:"lastMovementAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// MovementSentinel is the stamp used when a case has no recorded movements yet.
const MovementSentinel = "no-movements"

// MovementStamp renders the last movement time as a stable string for key
// derivation and cache freshness comparison.
func MovementStamp(lastMovementAt *time.Time) string {
	if lastMovementAt == nil {
		return MovementSentinel
	}
	return lastMovementAt.UTC().Format(time.RFC3339Nano)
}

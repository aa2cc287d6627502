package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"lexcase-backend/internal/cases"
)

// KeyInputs are the semantic inputs that identify one exact analysis request.
type KeyInputs struct {
	DocumentHashes  []string
	Model           string
	PromptSignature string
	MovementStamp   string
}

// BuildKey derives the content-addressed cache key. The hash list is sorted so
// document order never changes the key; the movement stamp makes the key stale
// the moment the case moves externally.
func BuildKey(in KeyInputs) string {
	hashes := append([]string(nil), in.DocumentHashes...)
	sort.Strings(hashes)
	payload := strings.Join([]string{
		strings.Join(hashes, ","),
		in.Model,
		in.PromptSignature,
		in.MovementStamp,
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// KeyGenerator derives analysis keys, reading the case's movement stamp.
type KeyGenerator struct {
	Cases cases.Repo
}

// KeyForCase derives the key for a request against the case's current state.
func (g *KeyGenerator) KeyForCase(ctx context.Context, caseID string, documentHashes []string, model, promptSignature string) (string, error) {
	movedAt, err := g.Cases.LatestMovementAt(ctx, caseID)
	if err != nil {
		return "", err
	}
	return BuildKey(KeyInputs{
		DocumentHashes:  documentHashes,
		Model:           model,
		PromptSignature: promptSignature,
		MovementStamp:   cases.MovementStamp(movedAt),
	}), nil
}

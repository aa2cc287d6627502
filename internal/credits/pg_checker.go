package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PGChecker reads workspace credit balances from postgres. A workspace with no
// row has never been granted credits and cannot consume any.
type PGChecker struct {
	DB *sql.DB
}

func (c *PGChecker) CanConsume(ctx context.Context, workspaceID string, n int) (bool, error) {
	const query = `SELECT remaining FROM workspace_credits WHERE workspace_id = $1`

	var remaining int
	err := c.DB.QueryRowContext(ctx, query, workspaceID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("credits lookup workspace=%s: %w", workspaceID, err)
	}
	return remaining >= n, nil
}

var _ Checker = (*PGChecker)(nil)

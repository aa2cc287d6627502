package cases

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

// Create inserts a new case.
func (r *PGRepo) Create(ctx context.Context, c Case) error {
	const query = `
INSERT INTO cases (id, workspace_id, title, court, docket_number, parties_summary, subject, last_movement_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	var lastMovement any
	if c.LastMovementAt != nil {
		lastMovement = c.LastMovementAt.UTC()
	}
	now := time.Now().UTC()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.DB.ExecContext(ctx, query,
		c.ID,
		c.WorkspaceID,
		c.Title,
		c.Court,
		c.DocketNumber,
		c.PartiesSummary,
		c.Subject,
		lastMovement,
		createdAt,
		now,
	)
	return err
}

// GetByID returns a case by ID.
func (r *PGRepo) GetByID(ctx context.Context, caseID string) (Case, error) {
	const query = `
SELECT id, workspace_id, title, court, docket_number, parties_summary, subject, last_movement_at, created_at, updated_at
FROM cases
WHERE id = $1
LIMIT 1`
	var c Case
	var lastMovement sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, caseID).Scan(
		&c.ID,
		&c.WorkspaceID,
		&c.Title,
		&c.Court,
		&c.DocketNumber,
		&c.PartiesSummary,
		&c.Subject,
		&lastMovement,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, ErrNotFound
	}
	if err != nil {
		return Case{}, err
	}
	if lastMovement.Valid {
		t := lastMovement.Time.UTC()
		c.LastMovementAt = &t
	}
	return c, nil
}

// LatestMovementAt returns only the movement timestamp, avoiding a full row fetch.
func (r *PGRepo) LatestMovementAt(ctx context.Context, caseID string) (*time.Time, error) {
	const query = `SELECT last_movement_at FROM cases WHERE id = $1 LIMIT 1`
	var lastMovement sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, caseID).Scan(&lastMovement)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !lastMovement.Valid {
		return nil, nil
	}
	t := lastMovement.Time.UTC()
	return &t, nil
}

// RecordMovement advances the movement timestamp; older stamps are ignored.
func (r *PGRepo) RecordMovement(ctx context.Context, caseID string, movedAt time.Time) error {
	const query = `
UPDATE cases
SET last_movement_at = GREATEST(COALESCE(last_movement_at, 'epoch'::timestamptz), $2),
    updated_at = $3
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, caseID, movedAt.UTC(), time.Now().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)

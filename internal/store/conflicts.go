package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

const conflictColumns = `id, user_id, type, severity, escalation_level, triggered_at, last_escalated_at,
	acknowledged_at, resolution_attempts, resolved, resolution_type, resolved_at, trigger_ids`

// GetOpenConflict returns the user's unresolved conflict, or nil.
func (s *Store) GetOpenConflict(ctx context.Context, userID string) (*conflict.Conflict, error) {
	return getOpenConflict(ctx, s.pool, userID)
}

func getOpenConflict(ctx context.Context, q queryer, userID string) (*conflict.Conflict, error) {
	row := q.QueryRow(ctx, `
		SELECT `+conflictColumns+`
		FROM conflicts
		WHERE user_id = $1 AND NOT resolved
		ORDER BY triggered_at DESC
		LIMIT 1`,
		userID,
	)
	c, err := scanConflict(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open conflict: %w", err)
	}
	return &c, nil
}

// GetConflict fetches a conflict by id.
func (s *Store) GetConflict(ctx context.Context, id uuid.UUID) (conflict.Conflict, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+conflictColumns+`
		FROM conflicts
		WHERE id = $1`,
		id,
	)
	c, err := scanConflict(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return conflict.Conflict{}, ErrNotFound
	}
	if err != nil {
		return conflict.Conflict{}, fmt.Errorf("get conflict: %w", err)
	}
	return c, nil
}

func (s *Store) recentConflictTypes(ctx context.Context, userID string) ([]emotion.ConflictType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT type
		FROM conflicts
		WHERE user_id = $1
		ORDER BY triggered_at DESC
		LIMIT $2`,
		userID, RecentConflictLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent conflicts: %w", err)
	}
	defer rows.Close()

	var out []emotion.ConflictType
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan conflict type: %w", err)
		}
		out = append(out, emotion.ConflictType(t))
	}
	return out, rows.Err()
}

func upsertConflict(ctx context.Context, tx pgx.Tx, c conflict.Conflict) error {
	ids, err := EncodeTriggerIDs(c.TriggerIDs)
	if err != nil {
		return err
	}
	var resolution *string
	if c.ResolutionType != nil {
		r := string(*c.ResolutionType)
		resolution = &r
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO conflicts (`+conflictColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id)
		DO UPDATE SET
			severity = $4,
			escalation_level = $5,
			last_escalated_at = $7,
			acknowledged_at = $8,
			resolution_attempts = $9,
			resolved = $10,
			resolution_type = $11,
			resolved_at = $12`,
		c.ID, c.UserID, string(c.Type), c.Severity, int(c.Level), c.TriggeredAt, c.LastEscalatedAt,
		c.AcknowledgedAt, c.ResolutionAttempts, c.Resolved, resolution, c.ResolvedAt, ids,
	)
	if err != nil {
		return fmt.Errorf("upsert conflict: %w", err)
	}
	return nil
}

func scanConflict(row pgx.Row) (conflict.Conflict, error) {
	var (
		c          conflict.Conflict
		typ        string
		level      int
		resolution *string
		ids        []byte
		escalated  *time.Time
		acked      *time.Time
		resolvedAt *time.Time
	)
	err := row.Scan(&c.ID, &c.UserID, &typ, &c.Severity, &level, &c.TriggeredAt, &escalated,
		&acked, &c.ResolutionAttempts, &c.Resolved, &resolution, &resolvedAt, &ids)
	if err != nil {
		return conflict.Conflict{}, err
	}
	c.Type = emotion.ConflictType(typ)
	c.Level = emotion.EscalationLevel(level)
	c.LastEscalatedAt = escalated
	c.AcknowledgedAt = acked
	c.ResolvedAt = resolvedAt
	if resolution != nil {
		rt := emotion.ResolutionType(*resolution)
		c.ResolutionType = &rt
	}
	if c.TriggerIDs, err = DecodeTriggerIDs(ids); err != nil {
		return conflict.Conflict{}, err
	}
	return c, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/store"
)

const conflictColumns = `id, user_id, type, severity, escalation_level, triggered_at, last_escalated_at,
	acknowledged_at, resolution_attempts, resolved, resolution_type, resolved_at, trigger_ids`

// GetOpenConflict returns the user's unresolved conflict, or nil.
func (s *Store) GetOpenConflict(ctx context.Context, userID string) (*conflict.Conflict, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+conflictColumns+`
FROM conflicts
WHERE user_id = ? AND resolved = 0
ORDER BY triggered_at DESC
LIMIT 1
`, userID)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open conflict: %w", err)
	}
	return &c, nil
}

// GetConflict fetches a conflict by id.
func (s *Store) GetConflict(ctx context.Context, id uuid.UUID) (conflict.Conflict, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+conflictColumns+`
FROM conflicts
WHERE id = ?
`, id.String())
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conflict.Conflict{}, store.ErrNotFound
	}
	if err != nil {
		return conflict.Conflict{}, fmt.Errorf("get conflict: %w", err)
	}
	return c, nil
}

func (s *Store) recentConflictTypes(ctx context.Context, userID string) ([]emotion.ConflictType, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT type
FROM conflicts
WHERE user_id = ?
ORDER BY triggered_at DESC
LIMIT ?
`, userID, store.RecentConflictLimit)
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

func upsertConflict(ctx context.Context, tx *sql.Tx, c conflict.Conflict) error {
	ids, err := store.EncodeTriggerIDs(c.TriggerIDs)
	if err != nil {
		return err
	}
	var resolution sql.NullString
	if c.ResolutionType != nil {
		resolution = sql.NullString{String: string(*c.ResolutionType), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO conflicts (`+conflictColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	severity = excluded.severity,
	escalation_level = excluded.escalation_level,
	last_escalated_at = excluded.last_escalated_at,
	acknowledged_at = excluded.acknowledged_at,
	resolution_attempts = excluded.resolution_attempts,
	resolved = excluded.resolved,
	resolution_type = excluded.resolution_type,
	resolved_at = excluded.resolved_at
`,
		c.ID.String(),
		c.UserID,
		string(c.Type),
		c.Severity,
		int(c.Level),
		c.TriggeredAt.UTC().UnixMilli(),
		toNullMillis(c.LastEscalatedAt),
		toNullMillis(c.AcknowledgedAt),
		c.ResolutionAttempts,
		c.Resolved,
		resolution,
		toNullMillis(c.ResolvedAt),
		string(ids),
	)
	if err != nil {
		return fmt.Errorf("upsert conflict: %w", err)
	}
	return nil
}

func scanConflict(row *sql.Row) (conflict.Conflict, error) {
	var (
		c          conflict.Conflict
		id         string
		typ        string
		level      int
		triggered  int64
		escalated  sql.NullInt64
		acked      sql.NullInt64
		resolution sql.NullString
		resolvedAt sql.NullInt64
		ids        string
	)
	err := row.Scan(&id, &c.UserID, &typ, &c.Severity, &level, &triggered, &escalated,
		&acked, &c.ResolutionAttempts, &c.Resolved, &resolution, &resolvedAt, &ids)
	if err != nil {
		return conflict.Conflict{}, err
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return conflict.Conflict{}, fmt.Errorf("parse conflict id: %w", err)
	}
	c.Type = emotion.ConflictType(typ)
	c.Level = emotion.EscalationLevel(level)
	c.TriggeredAt = fromMillis(triggered)
	c.LastEscalatedAt = fromNullMillis(escalated)
	c.AcknowledgedAt = fromNullMillis(acked)
	c.ResolvedAt = fromNullMillis(resolvedAt)
	if resolution.Valid {
		rt := emotion.ResolutionType(resolution.String)
		c.ResolutionType = &rt
	}
	if c.TriggerIDs, err = store.DecodeTriggerIDs([]byte(ids)); err != nil {
		return conflict.Conflict{}, err
	}
	return c, nil
}

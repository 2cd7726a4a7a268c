package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func insertEvents(ctx context.Context, tx pgx.Tx, events []EventRecord) error {
	for _, ev := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO emotion_events (id, user_id, kind, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			ev.ID, ev.UserID, ev.Kind, []byte(ev.Payload), ev.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.Kind, err)
		}
	}
	return nil
}

// ListEvents returns the user's newest events first.
func (s *Store) ListEvents(ctx context.Context, userID string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kind, payload, created_at
		FROM emotion_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var ev EventRecord
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Kind, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetState fetches a user's state record. A corrupt state blob is replaced
// by the default state rather than failing the read.
func (s *Store) GetState(ctx context.Context, userID string) (StateRecord, error) {
	return getState(ctx, s.pool, userID)
}

func getState(ctx context.Context, q queryer, userID string) (StateRecord, error) {
	row := q.QueryRow(ctx, `
		SELECT state, intimacy, passion, trust, secureness, chapter, updated_at
		FROM relationship_states
		WHERE user_id = $1`,
		userID,
	)

	rec := StateRecord{UserID: userID}
	var blob []byte
	err := row.Scan(&blob, &rec.Metrics.Intimacy, &rec.Metrics.Passion, &rec.Metrics.Trust, &rec.Metrics.Secureness, &rec.Chapter, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StateRecord{}, ErrNotFound
	}
	if err != nil {
		return StateRecord{}, fmt.Errorf("get state: %w", err)
	}
	// Decode falls back to the default state on a corrupt blob.
	rec.State, _ = emotion.Decode(blob)
	rec.Metrics = rec.Metrics.Normalize()
	return rec, nil
}

// Load gathers the user's records for one interaction.
func (s *Store) Load(ctx context.Context, userID string) (Snapshot, error) {
	snap := Snapshot{StateRecord: DefaultStateRecord(userID)}

	rec, err := getState(ctx, s.pool, userID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Snapshot{}, err
	default:
		snap.StateRecord = rec
		snap.Exists = true
	}

	if snap.OpenConflict, err = getOpenConflict(ctx, s.pool, userID); err != nil {
		return Snapshot{}, err
	}
	if snap.RecentConflictTypes, err = s.recentConflictTypes(ctx, userID); err != nil {
		return Snapshot{}, err
	}
	if err := s.recentMessages(ctx, userID, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Save writes state, metrics, conflict, message and events in one transaction.
func (s *Store) Save(ctx context.Context, u Update) error {
	blob, err := emotion.Encode(u.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m := u.Metrics.Normalize()
	_, err = tx.Exec(ctx, `
		INSERT INTO relationship_states (user_id, state, intimacy, passion, trust, secureness, chapter, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id)
		DO UPDATE SET
			state = $2,
			intimacy = $3,
			passion = $4,
			trust = $5,
			secureness = $6,
			chapter = $7,
			updated_at = $8`,
		u.UserID, blob, m.Intimacy, m.Passion, m.Trust, m.Secureness, u.Chapter, u.At,
	)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	if u.Conflict != nil {
		if err := upsertConflict(ctx, tx, *u.Conflict); err != nil {
			return err
		}
	}

	if u.Message != "" {
		_, err = tx.Exec(ctx, `
			INSERT INTO interaction_messages (user_id, content, created_at)
			VALUES ($1, $2, $3)`,
			u.UserID, u.Message, u.At,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := insertEvents(ctx, tx, u.Events); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ResetState replaces the user's emotional state with the default record,
// leaving metrics and conflicts untouched, and records events alongside.
func (s *Store) ResetState(ctx context.Context, userID string, now time.Time, events []EventRecord) error {
	blob, err := emotion.Encode(emotion.Default())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO relationship_states (user_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET state = $2, updated_at = $3`,
		userID, blob, now,
	)
	if err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) recentMessages(ctx context.Context, userID string, snap *Snapshot) error {
	rows, err := s.pool.Query(ctx, `
		SELECT content, created_at
		FROM interaction_messages
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		userID, RecentMessageLimit,
	)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []string
	for rows.Next() {
		var content string
		var at time.Time
		if err := rows.Scan(&content, &at); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		if snap.LastInteractionAt == nil {
			t := at
			snap.LastInteractionAt = &t
		}
		msgs = append(msgs, content)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate messages: %w", err)
	}
	Reverse(msgs)
	snap.RecentMessages = msgs
	return nil
}

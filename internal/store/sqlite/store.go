// Package sqlite is a single-node Repository backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/store"
	"github.com/MikeSquared-Agency/rapport/internal/store/sqlite/migrations"
)

// Store provides SQLite-backed relationship persistence.
type Store struct {
	sqlDB *sql.DB
}

var _ store.Repository = (*Store)(nil)

// Open opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_synchronous=NORMAL&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) GetState(ctx context.Context, userID string) (store.StateRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT state, intimacy, passion, trust, secureness, chapter, updated_at
FROM relationship_states
WHERE user_id = ?
`, userID)

	rec := store.StateRecord{UserID: userID}
	var (
		blob    string
		updated int64
	)
	err := row.Scan(&blob, &rec.Metrics.Intimacy, &rec.Metrics.Passion, &rec.Metrics.Trust, &rec.Metrics.Secureness, &rec.Chapter, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return store.StateRecord{}, store.ErrNotFound
	}
	if err != nil {
		return store.StateRecord{}, fmt.Errorf("get state: %w", err)
	}
	rec.State, _ = emotion.Decode([]byte(blob))
	rec.Metrics = rec.Metrics.Normalize()
	rec.UpdatedAt = fromMillis(updated)
	return rec, nil
}

func (s *Store) Load(ctx context.Context, userID string) (store.Snapshot, error) {
	snap := store.Snapshot{StateRecord: store.DefaultStateRecord(userID)}

	rec, err := s.GetState(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return store.Snapshot{}, err
	default:
		snap.StateRecord = rec
		snap.Exists = true
	}

	if snap.OpenConflict, err = s.GetOpenConflict(ctx, userID); err != nil {
		return store.Snapshot{}, err
	}
	if snap.RecentConflictTypes, err = s.recentConflictTypes(ctx, userID); err != nil {
		return store.Snapshot{}, err
	}
	if err := s.recentMessages(ctx, userID, &snap); err != nil {
		return store.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) Save(ctx context.Context, u store.Update) error {
	if strings.TrimSpace(u.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	blob, err := emotion.Encode(u.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m := u.Metrics.Normalize()
	_, err = tx.ExecContext(ctx, `
INSERT INTO relationship_states (user_id, state, intimacy, passion, trust, secureness, chapter, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	state = excluded.state,
	intimacy = excluded.intimacy,
	passion = excluded.passion,
	trust = excluded.trust,
	secureness = excluded.secureness,
	chapter = excluded.chapter,
	updated_at = excluded.updated_at
`, u.UserID, string(blob), m.Intimacy, m.Passion, m.Trust, m.Secureness, u.Chapter, u.At.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	if u.Conflict != nil {
		if err := upsertConflict(ctx, tx, *u.Conflict); err != nil {
			return err
		}
	}

	if u.Message != "" {
		_, err = tx.ExecContext(ctx, `
INSERT INTO interaction_messages (user_id, content, created_at)
VALUES (?, ?, ?)
`, u.UserID, u.Message, u.At.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := insertEvents(ctx, tx, u.Events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) ResetState(ctx context.Context, userID string, now time.Time, events []store.EventRecord) error {
	blob, err := emotion.Encode(emotion.Default())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO relationship_states (user_id, state, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	state = excluded.state,
	updated_at = excluded.updated_at
`, userID, string(blob), now.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, events []store.EventRecord) error {
	for _, ev := range events {
		_, err := tx.ExecContext(ctx, `
INSERT INTO emotion_events (id, user_id, kind, payload, created_at)
VALUES (?, ?, ?, ?, ?)
`, ev.ID.String(), ev.UserID, ev.Kind, string(ev.Payload), ev.CreatedAt.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.Kind, err)
		}
	}
	return nil
}

// ListEvents lists newest-first event records.
func (s *Store) ListEvents(ctx context.Context, userID string, limit int) ([]store.EventRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, kind, payload, created_at
FROM emotion_events
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []store.EventRecord
	for rows.Next() {
		var (
			ev      store.EventRecord
			id      string
			payload string
			created int64
		)
		if err := rows.Scan(&id, &ev.UserID, &ev.Kind, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		ev.Payload = []byte(payload)
		ev.CreatedAt = fromMillis(created)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *Store) recentMessages(ctx context.Context, userID string, snap *store.Snapshot) error {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT content, created_at
FROM interaction_messages
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, userID, store.RecentMessageLimit)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []string
	for rows.Next() {
		var (
			content string
			created int64
		)
		if err := rows.Scan(&content, &created); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		if snap.LastInteractionAt == nil {
			t := fromMillis(created)
			snap.LastInteractionAt = &t
		}
		msgs = append(msgs, content)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate messages: %w", err)
	}
	store.Reverse(msgs)
	snap.RecentMessages = msgs
	return nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

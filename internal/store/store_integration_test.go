//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func cleanupUser(t *testing.T, s *Store, userID string) {
	t.Cleanup(func() {
		ctx := context.Background()
		for _, table := range []string{"relationship_states", "conflicts", "interaction_messages", "emotion_events"} {
			s.pool.Exec(ctx, "DELETE FROM "+table+" WHERE user_id = $1", userID)
		}
	})
}

func TestIntegration_LoadUnknownUser(t *testing.T) {
	s := setupTestStore(t)
	userID := "integration-" + uuid.New().String()[:8]

	snap, err := s.Load(context.Background(), userID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Exists {
		t.Error("expected Exists=false for unknown user")
	}
	if snap.State.Zone != emotion.ZoneCalm || snap.Metrics != scoring.DefaultMetrics() {
		t.Errorf("expected defaults, got %+v", snap.StateRecord)
	}
	if snap.OpenConflict != nil {
		t.Error("expected no open conflict")
	}

	if _, err := s.GetState(context.Background(), userID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_SaveAndLoad(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := "integration-" + uuid.New().String()[:8]
	cleanupUser(t, s, userID)
	now := time.Now().UTC().Truncate(time.Millisecond)

	state := emotion.Default()
	state.Temperature = 62
	state.Zone = emotion.ZoneHot
	state.AddHorsemen(emotion.HorsemanContempt)

	c := conflict.New(userID, emotion.ConflictJealousy, 0.55, now, []uuid.UUID{uuid.New()})
	ev, err := NewEventRecord(userID, "conflict.generated", map[string]any{"type": "jealousy"}, now)
	if err != nil {
		t.Fatalf("NewEventRecord failed: %v", err)
	}

	err = s.Save(ctx, Update{
		UserID:   userID,
		State:    state,
		Metrics:  scoring.Metrics{Intimacy: 55, Passion: 48, Trust: 51, Secureness: 47},
		Chapter:  2,
		Conflict: &c,
		Message:  "who were you with last night?",
		At:       now,
		Events:   []EventRecord{ev},
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := s.Load(ctx, userID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !snap.Exists {
		t.Fatal("expected Exists=true")
	}
	if snap.State.Temperature != 62 || snap.State.Zone != emotion.ZoneHot {
		t.Errorf("unexpected state: %+v", snap.State)
	}
	if snap.Metrics.Intimacy != 55 || snap.Chapter != 2 {
		t.Errorf("unexpected metrics/chapter: %+v %d", snap.Metrics, snap.Chapter)
	}
	if snap.OpenConflict == nil || snap.OpenConflict.ID != c.ID {
		t.Fatalf("expected open conflict %s, got %+v", c.ID, snap.OpenConflict)
	}
	if len(snap.OpenConflict.TriggerIDs) != 1 {
		t.Errorf("expected 1 trigger id, got %v", snap.OpenConflict.TriggerIDs)
	}
	if len(snap.RecentConflictTypes) != 1 || snap.RecentConflictTypes[0] != emotion.ConflictJealousy {
		t.Errorf("unexpected recent types: %v", snap.RecentConflictTypes)
	}
	if len(snap.RecentMessages) != 1 || snap.LastInteractionAt == nil {
		t.Errorf("unexpected messages: %v %v", snap.RecentMessages, snap.LastInteractionAt)
	}

	events, err := s.ListEvents(ctx, userID, 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "conflict.generated" {
		t.Errorf("unexpected events: %+v", events)
	}

	// Resolve the conflict; it must stop being open.
	rt := emotion.ResolutionFull
	c.Resolved = true
	c.ResolutionType = &rt
	c.ResolvedAt = &now
	if err := s.Save(ctx, Update{UserID: userID, State: state, Metrics: snap.Metrics, Chapter: 2, Conflict: &c, At: now}); err != nil {
		t.Fatalf("Save resolved failed: %v", err)
	}
	open, err := s.GetOpenConflict(ctx, userID)
	if err != nil {
		t.Fatalf("GetOpenConflict failed: %v", err)
	}
	if open != nil {
		t.Errorf("expected no open conflict, got %+v", open)
	}
	got, err := s.GetConflict(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetConflict failed: %v", err)
	}
	if got.ResolutionType == nil || *got.ResolutionType != emotion.ResolutionFull {
		t.Errorf("expected full resolution, got %v", got.ResolutionType)
	}
}

func TestIntegration_ResetState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := "integration-" + uuid.New().String()[:8]
	cleanupUser(t, s, userID)
	now := time.Now().UTC()

	state := emotion.Default()
	state.Temperature = 80
	state.Zone = emotion.ZoneCritical
	metrics := scoring.Metrics{Intimacy: 30, Passion: 30, Trust: 30, Secureness: 30}
	if err := s.Save(ctx, Update{UserID: userID, State: state, Metrics: metrics, Chapter: 3, At: now}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ev, err := NewEventRecord(userID, "state.reset", map[string]any{"at": now}, now)
	if err != nil {
		t.Fatalf("NewEventRecord failed: %v", err)
	}
	if err := s.ResetState(ctx, userID, now, []EventRecord{ev}); err != nil {
		t.Fatalf("ResetState failed: %v", err)
	}
	events, err := s.ListEvents(ctx, userID, 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "state.reset" {
		t.Errorf("expected the reset event recorded, got %+v", events)
	}
	rec, err := s.GetState(ctx, userID)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if rec.State.Temperature != 0 || rec.State.Zone != emotion.ZoneCalm {
		t.Errorf("expected default state, got %+v", rec.State)
	}
	if rec.Metrics != metrics {
		t.Errorf("expected metrics kept, got %+v", rec.Metrics)
	}
}

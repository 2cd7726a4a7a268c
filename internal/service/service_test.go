package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/engine"
	"github.com/MikeSquared-Agency/rapport/internal/hermes"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
	"github.com/MikeSquared-Agency/rapport/internal/store"
	"github.com/MikeSquared-Agency/rapport/internal/store/sqlite"
	"github.com/MikeSquared-Agency/rapport/internal/userlock"
)

var t0 = time.Date(2026, 7, 4, 19, 30, 0, 0, time.UTC)

const neutralMessage = "I spent most of the afternoon reading in the park by the lake"

type fakePublisher struct {
	mu     sync.Mutex
	events []hermes.EmotionEvent
	err    error
}

func (f *fakePublisher) PublishEmotionEvents(events []hermes.EmotionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return f.err
}

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Kind
	}
	return out
}

type fixedRoll float64

func (f fixedRoll) Float64() float64 { return float64(f) }

func testService(t *testing.T, now time.Time) (*Service, *sqlite.Store, *fakePublisher) {
	t.Helper()
	repo, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "rapport.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &fakePublisher{}
	svc := New(Options{
		Repo: repo,
		Engine: engine.New(engine.Options{
			Generator: conflict.NewGenerator(fixedRoll(0.99)),
			DecayRate: 0.5,
			Logger:    logger,
		}),
		Locker:    userlock.NewLocal(),
		Publisher: pub,
		DecayRate: 0.5,
		Logger:    logger,
		Now:       func() time.Time { return now },
	})
	return svc, repo, pub
}

func analysis(d float64) *scoring.ResponseAnalysis {
	return &scoring.ResponseAnalysis{
		Deltas:              scoring.NewMetricDeltas(d, d, d, d),
		BehaviorsIdentified: []string{},
		Confidence:          0.8,
	}
}

func TestHandleInteraction_PersistsAndPublishes(t *testing.T) {
	svc, repo, pub := testService(t, t0)
	ctx := context.Background()

	var kinds []string
	for i := range 3 {
		res, err := svc.HandleInteraction(ctx, Request{
			UserID:      "u1",
			Chapter:     3,
			UserMessage: neutralMessage,
			Timestamp:   t0,
			Analysis:    analysis(-5),
		})
		if err != nil {
			t.Fatalf("interaction %d: %v", i+1, err)
		}
		kinds = append(kinds, res.EventKinds...)
	}

	snap, err := repo.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if math.Abs(snap.State.Temperature-37.5) > 1e-9 || snap.State.Zone != emotion.ZoneWarm {
		t.Fatalf("state = %v/%s, want 37.5/warm", snap.State.Temperature, snap.State.Zone)
	}
	if snap.State.NegativeCount != 3 || snap.Chapter != 3 {
		t.Fatalf("unexpected record: negatives %d chapter %d", snap.State.NegativeCount, snap.Chapter)
	}
	if len(snap.RecentMessages) != 3 {
		t.Fatalf("recent messages = %v", snap.RecentMessages)
	}
	if !slices.Contains(kinds, "temperature.zone_changed") {
		t.Fatalf("expected zone change in %v", kinds)
	}

	events, err := repo.ListEvents(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != len(kinds) {
		t.Fatalf("persisted %d events, returned %d", len(events), len(kinds))
	}
	if got := pub.kinds(); !slices.Equal(got, kinds) {
		t.Fatalf("published %v, want %v", got, kinds)
	}
}

func TestHandleInteraction_ChapterFallsBackToStored(t *testing.T) {
	svc, repo, _ := testService(t, t0)
	ctx := context.Background()

	if _, err := svc.HandleInteraction(ctx, Request{UserID: "u1", Chapter: 4, UserMessage: "hi", Analysis: analysis(1)}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.HandleInteraction(ctx, Request{UserID: "u1", UserMessage: "hello", Analysis: analysis(1)}); err != nil {
		t.Fatalf("second: %v", err)
	}
	rec, err := repo.GetState(ctx, "u1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if rec.Chapter != 4 {
		t.Fatalf("chapter = %d, want 4", rec.Chapter)
	}
}

func TestHandleInteraction_PublishFailureDoesNotFail(t *testing.T) {
	svc, _, pub := testService(t, t0)
	pub.err = errors.New("nats down")

	for range 2 {
		if _, err := svc.HandleInteraction(context.Background(), Request{
			UserID: "u1", UserMessage: neutralMessage, Timestamp: t0, Analysis: analysis(-5),
		}); err != nil {
			t.Fatalf("interaction: %v", err)
		}
	}
}

func TestHandleInteraction_RequiresUser(t *testing.T) {
	svc, _, _ := testService(t, t0)
	if _, err := svc.HandleInteraction(context.Background(), Request{UserID: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestHandleInteraction_ConcurrentUpdatesSerialized(t *testing.T) {
	svc, repo, _ := testService(t, t0)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleInteraction(ctx, Request{
				UserID: "u1", UserMessage: "thank you", Timestamp: t0, Analysis: analysis(2),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("interaction: %v", err)
		}
	}

	rec, err := repo.GetState(ctx, "u1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if rec.State.PositiveCount != 10 {
		t.Fatalf("positive count = %d, want 10", rec.State.PositiveCount)
	}
}

func TestHandleAnalyzed(t *testing.T) {
	svc, repo, _ := testService(t, t0)

	svc.HandleAnalyzed(hermes.SubjectInteractionAnalyzed, []byte(`{
		"user_id": "u9",
		"chapter": 2,
		"user_message": "good morning",
		"analysis": {"deltas": {"intimacy": 1, "passion": 1, "trust": 1, "secureness": 1}, "behaviors_identified": [], "confidence": 0.9}
	}`))
	svc.HandleAnalyzed(hermes.SubjectInteractionAnalyzed, []byte(`not json`))

	rec, err := repo.GetState(context.Background(), "u9")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if rec.Chapter != 2 || rec.State.PositiveCount != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestState_AppliesDecayLazily(t *testing.T) {
	later := t0.Add(10 * time.Hour)
	svc, repo, _ := testService(t, later)
	ctx := context.Background()

	state := emotion.Default()
	state.Temperature = 50
	state.Zone = emotion.ZoneHot
	last := t0
	state.LastUpdate = &last
	if err := repo.Save(ctx, store.Update{UserID: "u1", State: state, Metrics: scoring.DefaultMetrics(), Chapter: 1, At: t0}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	view, err := svc.State(ctx, "u1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if math.Abs(view.State.Temperature-45) > 1e-9 || view.Reading.Zone != emotion.ZoneWarm {
		t.Fatalf("view = %v/%s, want 45/warm", view.State.Temperature, view.Reading.Zone)
	}
	if view.Gottman.Ratio != 0 || view.Gottman.Target != emotion.RatioTargetStable {
		t.Fatalf("unexpected gottman view: %+v", view.Gottman)
	}

	rec, err := repo.GetState(ctx, "u1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if rec.State.Temperature != 50 {
		t.Fatalf("stored temperature = %v, read must not write", rec.State.Temperature)
	}
}

func TestState_UnknownUser(t *testing.T) {
	svc, _, _ := testService(t, t0)
	if _, err := svc.State(context.Background(), "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.OpenConflict(context.Background(), "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenConflict_ReturnsStored(t *testing.T) {
	svc, repo, _ := testService(t, t0.Add(time.Hour))
	ctx := context.Background()

	c := conflict.New("u1", emotion.ConflictJealousy, 0.5, t0, nil)
	if err := repo.Save(ctx, store.Update{UserID: "u1", State: emotion.Default(), Metrics: scoring.DefaultMetrics(), Chapter: 1, Conflict: &c, At: t0}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	view, err := svc.OpenConflict(ctx, "u1")
	if err != nil {
		t.Fatalf("open conflict: %v", err)
	}
	if view.Conflict.ID != c.ID || view.Conflict.Type != emotion.ConflictJealousy {
		t.Fatalf("unexpected conflict: %+v", view.Conflict)
	}
	if math.Abs(view.HoursInLevel-1) > 1e-9 {
		t.Fatalf("hours in level = %v, want 1", view.HoursInLevel)
	}
}

func TestReset(t *testing.T) {
	svc, repo, pub := testService(t, t0)
	ctx := context.Background()

	if _, err := svc.HandleInteraction(ctx, Request{UserID: "u1", UserMessage: neutralMessage, Timestamp: t0, Analysis: analysis(-5)}); err != nil {
		t.Fatalf("interaction: %v", err)
	}
	if err := svc.Reset(ctx, "u1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	rec, err := repo.GetState(ctx, "u1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if rec.State.Temperature != 0 || rec.State.NegativeCount != 0 {
		t.Fatalf("expected default state, got %+v", rec.State)
	}
	if !slices.Contains(pub.kinds(), "state.reset") {
		t.Fatalf("expected state.reset in %v", pub.kinds())
	}
	events, err := svc.Events(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "state.reset" {
		t.Fatalf("expected state.reset recorded as the latest event, got %+v", events)
	}
	if err := svc.Reset(ctx, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestEvents(t *testing.T) {
	svc, _, _ := testService(t, t0)
	ctx := context.Background()

	for range 2 {
		if _, err := svc.HandleInteraction(ctx, Request{UserID: "u1", UserMessage: neutralMessage, Timestamp: t0, Analysis: analysis(-5)}); err != nil {
			t.Fatalf("interaction: %v", err)
		}
	}
	events, err := svc.Events(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

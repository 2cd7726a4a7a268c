// Package service hosts the engine: it serializes interactions per user,
// loads and persists their records, and publishes the resulting events.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/breakup"
	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/engine"
	"github.com/MikeSquared-Agency/rapport/internal/gottman"
	"github.com/MikeSquared-Agency/rapport/internal/hermes"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
	"github.com/MikeSquared-Agency/rapport/internal/store"
	"github.com/MikeSquared-Agency/rapport/internal/temperature"
	"github.com/MikeSquared-Agency/rapport/internal/trigger"
	"github.com/MikeSquared-Agency/rapport/internal/userlock"
)

// ErrInvalidRequest is returned for requests without a user id.
var ErrInvalidRequest = errors.New("invalid interaction request")

// handlerTimeout bounds one NATS-delivered interaction.
const handlerTimeout = 2 * time.Minute

// EventPublisher delivers emotion events. hermes.Publisher implements it.
type EventPublisher interface {
	PublishEmotionEvents(events []hermes.EmotionEvent) error
}

type Options struct {
	Repo      store.Repository
	Engine    *engine.Engine
	Locker    userlock.Locker
	Publisher EventPublisher
	// Escalator projects open conflicts forward on read.
	Escalator *conflict.Escalator
	DecayRate float64
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service orchestrates one interaction end to end.
type Service struct {
	repo      store.Repository
	engine    *engine.Engine
	locker    userlock.Locker
	publisher EventPublisher
	escalator *conflict.Escalator
	breakups  *breakup.Manager
	decayRate float64
	logger    *slog.Logger
	now       func() time.Time
}

func New(opts Options) *Service {
	s := &Service{
		repo:      opts.Repo,
		engine:    opts.Engine,
		locker:    opts.Locker,
		publisher: opts.Publisher,
		escalator: opts.Escalator,
		breakups:  breakup.NewManager(),
		decayRate: opts.DecayRate,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.engine == nil {
		s.engine = engine.New(engine.Options{Logger: s.logger})
	}
	if s.locker == nil {
		s.locker = userlock.NewLocal()
	}
	if s.escalator == nil {
		s.escalator = conflict.NewEscalator(conflict.ModeTemperature)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Request is one interaction as delivered over HTTP or NATS.
type Request struct {
	UserID         string    `json:"user_id"`
	Chapter        int       `json:"chapter"`
	UserMessage    string    `json:"user_message"`
	CompanionReply string    `json:"companion_reply"`
	Timestamp      time.Time `json:"timestamp,omitempty"`

	// Analysis, when the producer already scored the exchange.
	Analysis *scoring.ResponseAnalysis `json:"analysis,omitempty"`

	SessionStartedAt    *time.Time `json:"session_started_at,omitempty"`
	SessionMessageCount int        `json:"session_message_count,omitempty"`
	SessionEnded        bool       `json:"session_ended,omitempty"`
}

// Result is the processed interaction.
type Result struct {
	UserID string `json:"user_id"`
	engine.Output
	EventKinds []string `json:"events"`
}

// HandleInteraction runs one interaction under the user's lock and persists
// the outcome.
func (s *Service) HandleInteraction(ctx context.Context, req Request) (Result, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return Result{}, ErrInvalidRequest
	}
	at := req.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	release, err := s.locker.Lock(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("lock user: %w", err)
	}
	defer release()

	snap, err := s.repo.Load(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("load user: %w", err)
	}
	chapter := req.Chapter
	if chapter == 0 {
		chapter = snap.Chapter
	}
	chapter = scoring.ClampChapter(chapter)

	out, err := s.engine.Process(ctx, engine.Input{
		UserID:              req.UserID,
		Chapter:             chapter,
		UserMessage:         req.UserMessage,
		CompanionReply:      req.CompanionReply,
		Timestamp:           at,
		State:               snap.State,
		Metrics:             snap.Metrics,
		OpenConflict:        snap.OpenConflict,
		RecentConflictTypes: snap.RecentConflictTypes,
		TriggerContext: trigger.Context{
			RecentMessages:      snap.RecentMessages,
			LastInteractionAt:   snap.LastInteractionAt,
			SessionStartedAt:    req.SessionStartedAt,
			SessionMessageCount: req.SessionMessageCount,
			SessionEnded:        req.SessionEnded,
		},
		Analysis: req.Analysis,
	})
	if err != nil {
		return Result{}, fmt.Errorf("process interaction: %w", err)
	}

	records, err := eventRecords(req.UserID, out.Events, at)
	if err != nil {
		return Result{}, err
	}

	upd := store.Update{
		UserID:  req.UserID,
		State:   out.State,
		Metrics: out.Score.Updated,
		Chapter: chapter,
		Message: req.UserMessage,
		At:      at,
		Events:  records,
	}
	if out.ConflictChanged && out.Conflict != nil {
		upd.Conflict = out.Conflict
	}
	if err := s.repo.Save(ctx, upd); err != nil {
		return Result{}, fmt.Errorf("save interaction: %w", err)
	}

	s.publish(req.UserID, records)

	s.logger.Info("interaction handled",
		"user_id", req.UserID,
		"chapter", chapter,
		"temperature", out.State.Temperature,
		"zone", out.State.Zone,
		"score", out.Score.ScoreAfter,
		"events", len(records),
	)
	return Result{UserID: req.UserID, Output: out, EventKinds: engine.Kinds(out.Events)}, nil
}

// HandleAnalyzed is the NATS handler for companion.interaction.analyzed.
func (s *Service) HandleAnalyzed(subject string, data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("failed to parse interaction event", "subject", subject, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if _, err := s.HandleInteraction(ctx, req); err != nil {
		s.logger.Error("interaction failed", "user_id", req.UserID, "error", err)
	}
}

func (s *Service) publish(userID string, records []store.EventRecord) {
	if s.publisher == nil || len(records) == 0 {
		return
	}
	events := make([]hermes.EmotionEvent, len(records))
	for i, r := range records {
		events[i] = hermes.EmotionEvent{
			ID:         r.ID.String(),
			UserID:     r.UserID,
			Kind:       r.Kind,
			Payload:    r.Payload,
			OccurredAt: r.CreatedAt,
		}
	}
	if err := s.publisher.PublishEmotionEvents(events); err != nil {
		s.logger.Warn("failed to publish emotion events", "user_id", userID, "error", err)
	}
}

func eventRecords(userID string, events []engine.Event, at time.Time) ([]store.EventRecord, error) {
	out := make([]store.EventRecord, 0, len(events))
	for _, ev := range events {
		rec, err := store.NewEventRecord(userID, ev.EventKind(), ev, at)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// StateView is a user's state as of now, with decay applied lazily.
type StateView struct {
	UserID      string                  `json:"user_id"`
	State       emotion.State           `json:"state"`
	Reading     temperature.Reading     `json:"reading"`
	Metrics     scoring.Metrics         `json:"metrics"`
	Composite   float64                 `json:"composite"`
	Chapter     int                     `json:"chapter"`
	Gottman     GottmanView             `json:"gottman"`
	Threshold   breakup.ThresholdResult `json:"threshold"`
	UpdatedAt   time.Time               `json:"updated_at"`
	HasConflict bool                    `json:"has_conflict"`
}

type GottmanView struct {
	Ratio       float64 `json:"ratio"`
	Target      float64 `json:"target"`
	BelowTarget bool    `json:"below_target"`
}

// State returns the user's current state. Nothing is written.
func (s *Service) State(ctx context.Context, userID string) (StateView, error) {
	rec, err := s.repo.GetState(ctx, userID)
	if err != nil {
		return StateView{}, err
	}
	open, err := s.repo.GetOpenConflict(ctx, userID)
	if err != nil {
		return StateView{}, err
	}
	now := s.now()
	inConflict := open != nil
	var openType emotion.ConflictType
	if open != nil {
		openType = open.Type
	}
	state := temperature.Decay(rec.State.Clone(), now, s.decayRate)
	counters := gottman.RollingCounters(state)

	view := StateView{
		UserID:    userID,
		State:     state,
		Reading:   temperature.ReadingOf(state),
		Metrics:   rec.Metrics,
		Composite: rec.Metrics.Composite(),
		Chapter:   rec.Chapter,
		Gottman: GottmanView{
			Ratio:       gottman.Persisted(gottman.Ratio(counters)),
			Target:      gottman.Target(inConflict),
			BelowTarget: gottman.IsBelowTarget(counters, inConflict),
		},
		UpdatedAt:   rec.UpdatedAt,
		HasConflict: inConflict,
	}
	view.Threshold, _ = s.breakups.Evaluate(userID, view.Composite, state, openType, now)
	return view, nil
}

// ConflictView is the user's open conflict projected to now.
type ConflictView struct {
	Conflict     conflict.Conflict          `json:"conflict"`
	HoursInLevel float64                    `json:"hours_in_level"`
	Pending      *conflict.EscalationResult `json:"pending,omitempty"`
}

// OpenConflict returns the open conflict as it would stand if the user
// interacted now, or store.ErrNotFound. Nothing is written.
func (s *Service) OpenConflict(ctx context.Context, userID string) (ConflictView, error) {
	open, err := s.repo.GetOpenConflict(ctx, userID)
	if err != nil {
		return ConflictView{}, err
	}
	if open == nil {
		return ConflictView{}, store.ErrNotFound
	}
	rec, err := s.repo.GetState(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return ConflictView{}, err
	}
	if errors.Is(err, store.ErrNotFound) {
		rec = store.DefaultStateRecord(userID)
	}

	now := s.now()
	state := temperature.Decay(rec.State.Clone(), now, s.decayRate)
	view := ConflictView{Conflict: *open, HoursInLevel: open.HoursInLevel(now)}
	if res := s.escalator.Check(*open, state.Zone, now); res.Changed() {
		view.Conflict = res.Conflict
		view.Pending = &res
	}
	return view, nil
}

// Reset writes the default emotional state for the user.
func (s *Service) Reset(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidRequest
	}
	release, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	defer release()

	now := s.now()
	rec, err := store.NewEventRecord(userID, "state.reset", map[string]any{"at": now}, now)
	if err != nil {
		return err
	}
	events := []store.EventRecord{rec}
	if err := s.repo.ResetState(ctx, userID, now, events); err != nil {
		return err
	}
	s.publish(userID, events)
	s.logger.Info("emotional state reset", "user_id", userID)
	return nil
}

// Events lists the user's most recent events.
func (s *Service) Events(ctx context.Context, userID string, limit int) ([]store.EventRecord, error) {
	return s.repo.ListEvents(ctx, userID, limit)
}

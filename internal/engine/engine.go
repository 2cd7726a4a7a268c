// Package engine runs the per-interaction relationship pipeline: analysis and
// trigger detection, scoring, the temperature update (with the repair
// bypass), conflict generation, escalation and resolution, and threshold
// checks. It is pure with respect to storage: callers pass the previous
// records in and persist the returned ones.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/rapport/internal/breakup"
	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/gottman"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
	"github.com/MikeSquared-Agency/rapport/internal/temperature"
	"github.com/MikeSquared-Agency/rapport/internal/trigger"
)

// ErrInvalidInput is returned for inputs the engine cannot attribute to a
// user.
var ErrInvalidInput = errors.New("invalid interaction input")

// BehaviorAcknowledgment is the analysis tag for a user acknowledging an
// open conflict without repairing it.
const BehaviorAcknowledgment = "acknowledgment"

// Analyzer produces the analysis of one exchange.
type Analyzer interface {
	Analyze(ctx context.Context, ex scoring.Exchange) (scoring.ResponseAnalysis, error)
}

// Options configures an Engine. Zero values take defaults.
type Options struct {
	Analyzer   Analyzer
	Detector   *trigger.Detector
	Generator  *conflict.Generator
	Calculator *scoring.Calculator
	Escalator  *conflict.Escalator
	Breakups   *breakup.Manager
	DecayRate  float64
	WindowDays int
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Engine processes interactions. It holds no per-user state and is safe for
// concurrent use; callers serialize updates per user.
type Engine struct {
	analyzer   Analyzer
	detector   *trigger.Detector
	generator  *conflict.Generator
	calc       *scoring.Calculator
	escalator  *conflict.Escalator
	breakups   *breakup.Manager
	decayRate  float64
	windowDays int
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New builds an engine from opts.
func New(opts Options) *Engine {
	e := &Engine{
		analyzer:   opts.Analyzer,
		detector:   opts.Detector,
		generator:  opts.Generator,
		calc:       opts.Calculator,
		escalator:  opts.Escalator,
		breakups:   opts.Breakups,
		decayRate:  opts.DecayRate,
		windowDays: opts.WindowDays,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.detector == nil {
		e.detector = trigger.NewDetector(nil, e.logger)
	}
	if e.generator == nil {
		e.generator = conflict.NewGenerator(nil)
	}
	if e.calc == nil {
		e.calc = scoring.NewCalculator(1.0)
	}
	if e.escalator == nil {
		e.escalator = conflict.NewEscalator(conflict.ModeTemperature)
	}
	if e.breakups == nil {
		e.breakups = breakup.NewManager()
	}
	if e.decayRate < 0 {
		e.decayRate = 0
	}
	if e.windowDays <= 0 {
		e.windowDays = gottman.DefaultWindowDays
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/MikeSquared-Agency/rapport/internal/engine")
	}
	return e
}

// Input is one interaction together with the user's current records.
type Input struct {
	UserID         string
	Chapter        int
	UserMessage    string
	CompanionReply string
	// Timestamp is when the interaction happened; zero means now.
	Timestamp time.Time

	State        emotion.State
	Metrics      scoring.Metrics
	OpenConflict *conflict.Conflict
	// RecentConflictTypes are the types of the user's latest conflicts,
	// newest first.
	RecentConflictTypes []emotion.ConflictType
	TriggerContext      trigger.Context

	// Analysis, when set, is used instead of calling the Analyzer.
	Analysis *scoring.ResponseAnalysis
}

// Source names which component set the temperature for an interaction.
type Source string

const (
	SourceRepair      Source = "repair_bypass"
	SourceTemperature Source = "temperature_engine"
	SourceRatio       Source = "ratio_tracker"
	SourceNone        Source = "none"
)

// Output is the result of one interaction.
type Output struct {
	State    emotion.State            `json:"state"`
	Score    scoring.ScoreResult      `json:"score"`
	Analysis scoring.ResponseAnalysis `json:"analysis"`
	Triggers []trigger.Trigger        `json:"triggers"`

	// Conflict is the user's current conflict after this interaction: the
	// open one, one resolved during it, or a newly generated one.
	Conflict        *conflict.Conflict `json:"conflict,omitempty"`
	ConflictChanged bool               `json:"conflict_changed"`

	TemperatureDelta  float64 `json:"temperature_delta"`
	TemperatureSource Source  `json:"temperature_source"`

	Threshold breakup.ThresholdResult `json:"threshold"`
	Breakup   *breakup.BreakupResult  `json:"breakup,omitempty"`

	Events []Event `json:"-"`
}

// Process runs the pipeline for one interaction. Collaborator failures
// degrade to a neutral analysis; the only error is an input without a user.
func (e *Engine) Process(ctx context.Context, in Input) (Output, error) {
	if in.UserID == "" {
		return Output{}, ErrInvalidInput
	}
	now := in.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	chapter := scoring.ClampChapter(in.Chapter)

	ctx, span := e.tracer.Start(ctx, "engine.Process", trace.WithAttributes(
		attribute.String("user.id", in.UserID),
		attribute.Int("chapter", chapter),
	))
	defer span.End()

	before := temperature.ReadingOf(in.State)
	state := temperature.Decay(in.State.Clone(), now, e.decayRate)
	state = gottman.PruneWindow(state, e.windowDays, now)

	var open *conflict.Conflict
	if in.OpenConflict != nil && in.OpenConflict.Open() {
		c := in.OpenConflict.Clone()
		open = &c
	}

	analysis, triggers := e.analyzeAndDetect(ctx, in, open, chapter, now)

	out := Output{Analysis: analysis, Triggers: triggers}
	var events []Event

	out.Score = e.calc.Calculate(in.Metrics, analysis.Deltas, chapter)
	for _, ev := range out.Score.Events {
		events = append(events, ev)
	}

	// Without a usable analysis the only resolution signal is the message.
	var attempt *emotion.Quality
	if open != nil && analysis.Degraded() {
		q := conflict.Classify(in.UserMessage)
		attempt = &q
		if q.IsRepair() {
			analysis.RepairAttemptDetected = true
			analysis.RepairQuality = &q
			out.Analysis = analysis
		}
	}

	turn := turnState{state: state, open: open, now: now}
	if analysis.HasRepair() {
		e.repair(&turn, *analysis.RepairQuality)
	} else {
		e.update(&turn, analysis, out.Score.Delta(), triggers, attempt)
	}
	events = append(events, turn.events...)
	state = turn.state
	open = turn.open
	out.TemperatureDelta = turn.delta
	out.TemperatureSource = turn.source

	resolvedNow := open != nil && !open.Open()
	if open != nil && open.Open() {
		res := e.escalator.Check(*open, state.Zone, now)
		if res.Changed() {
			c := res.Conflict
			open = &c
			turn.changed = true
			events = append(events, res)
		}
	}

	if open == nil && !resolvedNow {
		gen := e.generator.Generate(conflict.GenerationInput{
			UserID:      in.UserID,
			Temperature: state.Temperature,
			Triggers:    triggers,
			RecentTypes: in.RecentConflictTypes,
			Now:         now,
		})
		if gen.Generated {
			open = gen.Conflict
			turn.changed = true
			events = append(events, gen)
		}
	}

	inConflict := open != nil && open.Open()
	state = gottman.Refresh(state, inConflict)

	if after := temperature.ReadingOf(state); after.Zone != before.Zone {
		events = append(events, ZoneChange{
			From:        before.Zone,
			To:          after.Zone,
			Temperature: after.Value,
			Source:      out.TemperatureSource,
		})
	}

	var openType emotion.ConflictType
	if open != nil {
		openType = open.Type
	}
	out.Threshold, out.Breakup = e.breakups.Evaluate(in.UserID, out.Score.ScoreAfter, state, openType, now)
	if out.Threshold.Status != breakup.StatusOK && out.Breakup == nil {
		events = append(events, out.Threshold)
	}
	if out.Breakup != nil {
		events = append(events, *out.Breakup)
	}

	out.State = state
	out.Conflict = open
	out.ConflictChanged = turn.changed
	out.Events = events

	span.SetAttributes(
		attribute.Float64("temperature", state.Temperature),
		attribute.String("zone", string(state.Zone)),
		attribute.String("temperature.source", string(out.TemperatureSource)),
		attribute.Int("events", len(events)),
	)
	e.logger.Debug("interaction processed",
		"user_id", in.UserID,
		"temperature", state.Temperature,
		"zone", state.Zone,
		"source", out.TemperatureSource,
		"delta", out.TemperatureDelta,
		"score", out.Score.ScoreAfter,
		"events", len(events),
	)
	return out, nil
}

// analyzeAndDetect runs the analysis and the trigger rules concurrently.
func (e *Engine) analyzeAndDetect(ctx context.Context, in Input, open *conflict.Conflict, chapter int, now time.Time) (scoring.ResponseAnalysis, []trigger.Trigger) {
	var (
		analysis scoring.ResponseAnalysis
		triggers []trigger.Trigger
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		analysis = e.analysis(gctx, in, open, chapter)
		return nil
	})
	g.Go(func() error {
		triggers = e.detector.Detect(gctx, in.UserMessage, in.TriggerContext, chapter, now)
		return nil
	})
	_ = g.Wait()
	return analysis.Normalize(), triggers
}

func (e *Engine) analysis(ctx context.Context, in Input, open *conflict.Conflict, chapter int) scoring.ResponseAnalysis {
	if in.Analysis != nil {
		return *in.Analysis
	}
	if e.analyzer == nil {
		return scoring.NeutralAnalysis()
	}
	ex := scoring.Exchange{
		UserID:         in.UserID,
		Chapter:        chapter,
		UserMessage:    in.UserMessage,
		CompanionReply: in.CompanionReply,
	}
	if open != nil {
		ex.OpenConflict = string(open.Type)
	}
	a, err := e.analyzer.Analyze(ctx, ex)
	if err != nil {
		e.logger.Warn("analysis unavailable, using neutral result",
			"user_id", in.UserID,
			"error", err,
		)
		return scoring.NeutralAnalysis()
	}
	return a
}

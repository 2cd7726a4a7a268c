// Package scoring converts analysis metric deltas into an updated composite
// relationship score and detects score-crossing events.
package scoring

import (
	"math"
)

// Metric names.
const (
	MetricIntimacy   = "intimacy"
	MetricPassion    = "passion"
	MetricTrust      = "trust"
	MetricSecureness = "secureness"
)

// Composite weights. They sum to 1.
const (
	WeightIntimacy   = 0.30
	WeightPassion    = 0.25
	WeightTrust      = 0.25
	WeightSecureness = 0.20
)

const (
	// DefaultMetric is the starting value of every metric.
	DefaultMetric = 50.0

	// CriticalLowThreshold is the composite score below which the
	// relationship is in critical condition.
	CriticalLowThreshold = 20.0
)

// bossThresholds is the composite score that unlocks the chapter boss.
var bossThresholds = map[int]float64{
	1: 55,
	2: 60,
	3: 65,
	4: 70,
	5: 75,
}

// BossThreshold returns the boss score for a chapter (clamped to 1..5).
func BossThreshold(chapter int) float64 {
	return bossThresholds[ClampChapter(chapter)]
}

// ClampChapter bounds a chapter number to the playable range.
func ClampChapter(chapter int) int {
	return min(max(chapter, 1), 5)
}

// Metrics are the four relationship metrics, each in [0,100].
type Metrics struct {
	Intimacy   float64 `json:"intimacy"`
	Passion    float64 `json:"passion"`
	Trust      float64 `json:"trust"`
	Secureness float64 `json:"secureness"`
}

// DefaultMetrics is the starting point for a new relationship.
func DefaultMetrics() Metrics {
	return Metrics{DefaultMetric, DefaultMetric, DefaultMetric, DefaultMetric}
}

// Composite is the weighted score, clamped to [0,100] and rounded to cents.
func (m Metrics) Composite() float64 {
	raw := m.Intimacy*WeightIntimacy +
		m.Passion*WeightPassion +
		m.Trust*WeightTrust +
		m.Secureness*WeightSecureness
	return round2(clampMetric(raw))
}

// Map returns the metrics keyed by name.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		MetricIntimacy:   m.Intimacy,
		MetricPassion:    m.Passion,
		MetricTrust:      m.Trust,
		MetricSecureness: m.Secureness,
	}
}

// Apply adds deltas to m, clamping each metric.
func (m Metrics) Apply(d MetricDeltas) Metrics {
	return Metrics{
		Intimacy:   clampMetric(m.Intimacy + d.Intimacy),
		Passion:    clampMetric(m.Passion + d.Passion),
		Trust:      clampMetric(m.Trust + d.Trust),
		Secureness: clampMetric(m.Secureness + d.Secureness),
	}
}

// Normalize clamps every metric, replacing non-finite values with the
// default.
func (m Metrics) Normalize() Metrics {
	fix := func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return DefaultMetric
		}
		return clampMetric(v)
	}
	return Metrics{fix(m.Intimacy), fix(m.Passion), fix(m.Trust), fix(m.Secureness)}
}

// EventType names a score-crossing event.
type EventType string

const (
	EventBossThreshold EventType = "boss_threshold_reached"
	EventCriticalLow   EventType = "critical_low"
	EventRecovery      EventType = "recovery_from_critical"
	EventGameOver      EventType = "game_over"
)

// ScoreEvent is emitted when the composite crosses a threshold.
type ScoreEvent struct {
	Type      EventType `json:"type"`
	Threshold float64   `json:"threshold"`
	Before    float64   `json:"before"`
	After     float64   `json:"after"`
	Chapter   int       `json:"chapter"`
}

// EventKind implements the engine event contract.
func (e ScoreEvent) EventKind() string { return "score." + string(e.Type) }

// ScoreResult is the outcome of applying one analysis to the metrics.
type ScoreResult struct {
	ScoreBefore   float64            `json:"score_before"`
	ScoreAfter    float64            `json:"score_after"`
	MetricsBefore map[string]float64 `json:"metrics_before"`
	MetricsAfter  map[string]float64 `json:"metrics_after"`
	AppliedDeltas MetricDeltas       `json:"applied_deltas"`
	Multiplier    float64            `json:"multiplier"`
	Events        []ScoreEvent       `json:"events"`

	// Updated carries the new metric values for persistence.
	Updated Metrics `json:"-"`
}

// Delta is the composite score change.
func (r ScoreResult) Delta() float64 {
	return round2(r.ScoreAfter - r.ScoreBefore)
}

// Calculator applies analysis deltas with a calibration multiplier.
type Calculator struct {
	multiplier float64
}

// NewCalculator returns a calculator. A non-positive or non-finite
// multiplier falls back to 1.
func NewCalculator(multiplier float64) *Calculator {
	if multiplier <= 0 || math.IsNaN(multiplier) || math.IsInf(multiplier, 0) {
		multiplier = 1.0
	}
	return &Calculator{multiplier: multiplier}
}

// Multiplier returns the calibration multiplier in use.
func (c *Calculator) Multiplier() float64 {
	return c.multiplier
}

// Calculate applies deltas to the current metrics for the given chapter.
func (c *Calculator) Calculate(current Metrics, deltas MetricDeltas, chapter int) ScoreResult {
	before := current.Normalize()
	applied := deltas.Scale(c.multiplier)
	after := before.Apply(applied)

	res := ScoreResult{
		ScoreBefore:   before.Composite(),
		ScoreAfter:    after.Composite(),
		MetricsBefore: before.Map(),
		MetricsAfter:  after.Map(),
		AppliedDeltas: applied,
		Multiplier:    c.multiplier,
		Updated:       after,
	}
	res.Events = DetectEvents(res.ScoreBefore, res.ScoreAfter, ClampChapter(chapter))
	return res
}

// DetectEvents lists the thresholds crossed moving from before to after.
func DetectEvents(before, after float64, chapter int) []ScoreEvent {
	events := []ScoreEvent{}
	boss := BossThreshold(chapter)
	mk := func(t EventType, threshold float64) ScoreEvent {
		return ScoreEvent{Type: t, Threshold: threshold, Before: before, After: after, Chapter: chapter}
	}

	if before < boss && after >= boss {
		events = append(events, mk(EventBossThreshold, boss))
	}
	if before >= CriticalLowThreshold && after < CriticalLowThreshold {
		events = append(events, mk(EventCriticalLow, CriticalLowThreshold))
	}
	if before < CriticalLowThreshold && after >= CriticalLowThreshold {
		events = append(events, mk(EventRecovery, CriticalLowThreshold))
	}
	if before > 0 && after <= 0 {
		events = append(events, mk(EventGameOver, 0))
	}
	return events
}

func clampMetric(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 100.0 {
		return 100.0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

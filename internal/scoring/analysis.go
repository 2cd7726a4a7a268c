package scoring

import (
	"math"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// MaxMetricDelta bounds each per-turn metric delta.
const MaxMetricDelta = 10.0

// MetricDeltas are the per-turn changes the analysis assigns to each metric.
type MetricDeltas struct {
	Intimacy   float64 `json:"intimacy" jsonschema:"minimum=-10,maximum=10"`
	Passion    float64 `json:"passion" jsonschema:"minimum=-10,maximum=10"`
	Trust      float64 `json:"trust" jsonschema:"minimum=-10,maximum=10"`
	Secureness float64 `json:"secureness" jsonschema:"minimum=-10,maximum=10"`
}

// NewMetricDeltas clamps each delta into [-10,10].
func NewMetricDeltas(intimacy, passion, trust, secureness float64) MetricDeltas {
	return MetricDeltas{Intimacy: intimacy, Passion: passion, Trust: trust, Secureness: secureness}.Clamped()
}

// Clamped returns d with every delta bounded and non-finite values zeroed.
func (d MetricDeltas) Clamped() MetricDeltas {
	return MetricDeltas{
		Intimacy:   clampDelta(d.Intimacy),
		Passion:    clampDelta(d.Passion),
		Trust:      clampDelta(d.Trust),
		Secureness: clampDelta(d.Secureness),
	}
}

// Total is the unweighted sum of the four deltas.
func (d MetricDeltas) Total() float64 {
	return d.Intimacy + d.Passion + d.Trust + d.Secureness
}

// IsPositive reports whether the turn was a net gain.
func (d MetricDeltas) IsPositive() bool {
	return d.Total() > 0
}

// Scale multiplies every delta by m and re-clamps.
func (d MetricDeltas) Scale(m float64) MetricDeltas {
	return MetricDeltas{
		Intimacy:   d.Intimacy * m,
		Passion:    d.Passion * m,
		Trust:      d.Trust * m,
		Secureness: d.Secureness * m,
	}.Clamped()
}

func clampDelta(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -MaxMetricDelta:
		return -MaxMetricDelta
	case v > MaxMetricDelta:
		return MaxMetricDelta
	}
	return v
}

// ResponseAnalysis is what the LLM collaborator reports for one exchange.
type ResponseAnalysis struct {
	Deltas                MetricDeltas     `json:"deltas"`
	BehaviorsIdentified   []string         `json:"behaviors_identified"`
	Confidence            float64          `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	RepairAttemptDetected bool             `json:"repair_attempt_detected"`
	RepairQuality         *emotion.Quality `json:"repair_quality" jsonschema:"enum=excellent,enum=good,enum=adequate"`
}

// NeutralAnalysis is the result used when the collaborator is unavailable:
// all deltas zero and zero confidence.
func NeutralAnalysis() ResponseAnalysis {
	return ResponseAnalysis{BehaviorsIdentified: []string{}}
}

// Normalize clamps deltas and confidence, and drops repair qualities outside
// the repair tiers.
func (a ResponseAnalysis) Normalize() ResponseAnalysis {
	out := a
	out.Deltas = a.Deltas.Clamped()
	switch {
	case math.IsNaN(a.Confidence) || a.Confidence < 0:
		out.Confidence = 0
	case a.Confidence > 1:
		out.Confidence = 1
	}
	if a.RepairQuality != nil {
		q, ok := emotion.ParseQuality(string(*a.RepairQuality))
		if ok && q.IsRepair() {
			out.RepairQuality = &q
		} else {
			out.RepairQuality = nil
		}
	}
	if out.BehaviorsIdentified == nil {
		out.BehaviorsIdentified = []string{}
	}
	return out
}

// Degraded reports whether this is a neutral fallback rather than a real
// analysis.
func (a ResponseAnalysis) Degraded() bool {
	return a.Confidence == 0 && a.Deltas == (MetricDeltas{}) && !a.RepairAttemptDetected
}

// HasRepair is the repair-bypass condition: a detected attempt with a
// quality tier attached.
func (a ResponseAnalysis) HasRepair() bool {
	return a.RepairAttemptDetected && a.RepairQuality != nil && a.RepairQuality.IsRepair()
}

// Horsemen returns the horsemen tagged in the behaviors, in tag order
// without duplicates.
func (a ResponseAnalysis) Horsemen() []emotion.Horseman {
	var out []emotion.Horseman
	seen := make(map[emotion.Horseman]bool)
	for _, tag := range a.BehaviorsIdentified {
		if h, ok := emotion.ParseHorsemanTag(tag); ok && !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

// HasBehavior reports whether tag appears among the behaviors.
func (a ResponseAnalysis) HasBehavior(tag string) bool {
	for _, b := range a.BehaviorsIdentified {
		if b == tag {
			return true
		}
	}
	return false
}

// Exchange is the message pair an analysis is produced for.
type Exchange struct {
	UserID         string `json:"user_id"`
	Chapter        int    `json:"chapter"`
	UserMessage    string `json:"user_message"`
	CompanionReply string `json:"companion_reply"`
	// OpenConflict names the type of the unresolved conflict, if any, so the
	// analysis can judge repair attempts against it.
	OpenConflict string `json:"open_conflict,omitempty"`
}

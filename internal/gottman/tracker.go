// Package gottman tracks the rolling positive:negative interaction ratio and
// turns its distance from target into a temperature delta.
package gottman

import (
	"math"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// DefaultWindowDays is the length of the rolling counter window.
const DefaultWindowDays = 7

const (
	belowTargetMin = 2.0
	belowTargetMax = 5.0
	aboveTargetMin = -1.0
	aboveTargetMax = -2.0
)

// Counters is a positive/negative interaction tally.
type Counters struct {
	Positive int
	Negative int
}

// RollingCounters reads the windowed counters off a state.
func RollingCounters(s emotion.State) Counters {
	return Counters{Positive: s.PositiveCount, Negative: s.NegativeCount}
}

// Ratio is positive/negative. No interactions at all is 0; positives with no
// negatives is +Inf. Use Persisted before writing the value anywhere.
func Ratio(c Counters) float64 {
	if c.Negative <= 0 {
		if c.Positive > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return float64(max(c.Positive, 0)) / float64(c.Negative)
}

// Persisted maps +Inf to the emotion.RatioInfinite sentinel.
func Persisted(ratio float64) float64 {
	switch {
	case math.IsNaN(ratio) || ratio < 0:
		return 0
	case math.IsInf(ratio, 1) || ratio > emotion.RatioInfinite:
		return emotion.RatioInfinite
	}
	return ratio
}

// Target is the healthy ratio: 5:1 during a conflict, 20:1 otherwise.
func Target(inConflict bool) float64 {
	if inConflict {
		return emotion.RatioTargetConflict
	}
	return emotion.RatioTargetStable
}

func empty(c Counters) bool {
	return c.Positive <= 0 && c.Negative <= 0
}

// IsBelowTarget is false when there is no signal yet and when the ratio is
// unboundedly favorable.
func IsBelowTarget(c Counters, inConflict bool) bool {
	if empty(c) {
		return false
	}
	r := Ratio(c)
	if math.IsInf(r, 1) {
		return false
	}
	return r < Target(inConflict)
}

// TemperatureDelta heats between +2 and +5 when the ratio is below target
// and cools between -1 and -2 when at or above it. No interactions yields 0.
func TemperatureDelta(c Counters, inConflict bool) float64 {
	if empty(c) {
		return 0
	}
	target := Target(inConflict)
	r := Ratio(c)
	if IsBelowTarget(c, inConflict) {
		frac := math.Min(1, (target-r)/target)
		return belowTargetMin + frac*(belowTargetMax-belowTargetMin)
	}
	frac := 1.0
	if !math.IsInf(r, 1) {
		frac = math.Min(1, (r-target)/target)
	}
	return aboveTargetMin + frac*(aboveTargetMax-aboveTargetMin)
}

// RecordInteraction counts one interaction of the given polarity in both the
// rolling and session counters, and refreshes the derived ratio fields.
// Temperature and zone are never touched.
func RecordInteraction(s emotion.State, positive, inConflict bool) emotion.State {
	out := s.Clone()
	if positive {
		out.PositiveCount++
		out.SessionPositive++
	} else {
		out.NegativeCount++
		out.SessionNegative++
	}
	return Refresh(out, inConflict)
}

// Refresh recomputes the persisted ratio and target from the counters.
func Refresh(s emotion.State, inConflict bool) emotion.State {
	s.Ratio = Persisted(Ratio(RollingCounters(s)))
	s.RatioTarget = Target(inConflict)
	return s
}

// PruneWindow resets the rolling counters once the window has run past
// windowDays. Session counters are kept. A window exactly windowDays old is
// not pruned.
func PruneWindow(s emotion.State, windowDays int, now time.Time) emotion.State {
	out := s.Clone()
	if out.WindowStart.IsZero() {
		out.WindowStart = now
		return out
	}
	cutoff := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	if out.WindowStart.Before(cutoff) {
		out.PositiveCount = 0
		out.NegativeCount = 0
		out.Ratio = 0
		out.WindowStart = now
	}
	return out
}

// ResetSession clears the session counters, e.g. when a new chat session
// starts.
func ResetSession(s emotion.State) emotion.State {
	out := s.Clone()
	out.SessionPositive = 0
	out.SessionNegative = 0
	return out
}

// Package temperature maps the bounded conflict-heat scalar onto zones,
// injection probabilities and severity caps, and applies bounded deltas and
// time decay to an emotional state.
package temperature

import (
	"math"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

const (
	Min = 0.0
	Max = 100.0

	// DefaultDecayRate is the cooling applied per elapsed hour.
	DefaultDecayRate = 0.5

	zoneWidth = 25.0

	// Score-derived deltas: losses heat 3x faster than gains cool, with a
	// flat bonus for large drops.
	negativeScoreFactor = 1.5
	positiveScoreFactor = 0.5
	largeDropThreshold  = 3.0
	largeDropBonus      = 5.0
)

// ZoneOf classifies a temperature. Bands are lower-inclusive; CRITICAL
// includes 100.
func ZoneOf(temp float64) emotion.Zone {
	t := Clamp(temp)
	switch {
	case t < 25:
		return emotion.ZoneCalm
	case t < 50:
		return emotion.ZoneWarm
	case t < 75:
		return emotion.ZoneHot
	default:
		return emotion.ZoneCritical
	}
}

// Clamp bounds t to [0,100]. NaN and -Inf map to 0, +Inf to 100.
func Clamp(t float64) float64 {
	switch {
	case math.IsNaN(t):
		return Min
	case t < Min:
		return Min
	case t > Max:
		return Max
	}
	return t
}

// Increase adds |delta| to current. A non-finite delta saturates to Max.
func Increase(current, delta float64) float64 {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return Max
	}
	return Clamp(Clamp(current) + math.Abs(delta))
}

// Decrease subtracts |delta| from current. A non-finite delta floors to Min.
func Decrease(current, delta float64) float64 {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return Min
	}
	return Clamp(Clamp(current) - math.Abs(delta))
}

// Shift applies a signed delta through Increase or Decrease.
func Shift(current, delta float64) float64 {
	if delta < 0 {
		return Decrease(current, delta)
	}
	if delta > 0 || math.IsNaN(delta) {
		return Increase(current, delta)
	}
	return Clamp(current)
}

// ApplyTimeDecay cools current by hoursElapsed*rate. Negative elapsed time
// or rate never heats.
func ApplyTimeDecay(current, hoursElapsed, rate float64) float64 {
	h := nonNegative(hoursElapsed)
	r := nonNegative(rate)
	return Clamp(math.Max(0, Clamp(current)-h*r))
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	return v
}

// ProbabilityRange is the conflict-injection probability band of a zone.
type ProbabilityRange struct {
	Min float64
	Max float64
}

// InjectionRange returns the probability band for a zone.
func InjectionRange(z emotion.Zone) ProbabilityRange {
	switch z {
	case emotion.ZoneWarm:
		return ProbabilityRange{0.10, 0.25}
	case emotion.ZoneHot:
		return ProbabilityRange{0.25, 0.60}
	case emotion.ZoneCritical:
		return ProbabilityRange{0.60, 0.90}
	}
	return ProbabilityRange{0, 0}
}

// InjectionProbability linearly interpolates within the temperature's zone
// band. The result is always in [0,1].
func InjectionProbability(temp float64) float64 {
	t := Clamp(temp)
	z := ZoneOf(t)
	r := InjectionRange(z)
	frac := (t - zoneFloor(z)) / zoneWidth
	frac = math.Min(1, math.Max(0, frac))
	p := r.Min + frac*(r.Max-r.Min)
	return math.Min(1, math.Max(0, p))
}

func zoneFloor(z emotion.Zone) float64 {
	switch z {
	case emotion.ZoneWarm:
		return 25
	case emotion.ZoneHot:
		return 50
	case emotion.ZoneCritical:
		return 75
	}
	return 0
}

// MaxSeverity caps the severity of a conflict generated in zone z.
func MaxSeverity(z emotion.Zone) float64 {
	switch z {
	case emotion.ZoneWarm:
		return 0.4
	case emotion.ZoneHot:
		return 0.7
	case emotion.ZoneCritical:
		return 1.0
	}
	return 0
}

// DeltaFromScore converts a composite score change into a temperature
// change. Drops strictly larger than 3 points carry a flat +5 bonus.
func DeltaFromScore(scoreDelta float64) float64 {
	if math.IsNaN(scoreDelta) {
		return 0
	}
	abs := math.Abs(scoreDelta)
	switch {
	case scoreDelta < 0:
		d := abs * negativeScoreFactor
		if abs > largeDropThreshold {
			d += largeDropBonus
		}
		return d
	case scoreDelta > 0:
		return -abs * positiveScoreFactor
	}
	return 0
}

// DeltaFromHorseman is the heat added when a horseman is detected.
func DeltaFromHorseman(h emotion.Horseman) float64 {
	switch h {
	case emotion.HorsemanCriticism:
		return 4.0
	case emotion.HorsemanContempt:
		return 8.0
	case emotion.HorsemanDefensiveness:
		return 3.0
	case emotion.HorsemanStonewalling:
		return 5.0
	}
	return 0
}

// DeltaFromTrigger is the heat added when a trigger is detected.
func DeltaFromTrigger(t emotion.TriggerType) float64 {
	switch t {
	case emotion.TriggerDismissive:
		return 3.0
	case emotion.TriggerNeglect:
		return 5.0
	case emotion.TriggerJealousy:
		return 4.0
	case emotion.TriggerBoundary:
		return 8.0
	case emotion.TriggerTrust:
		return 6.0
	}
	return 0
}

// ApplyDelta returns a copy of s with the delta applied: temperature is
// clamped, zone recomputed, the update stamped, and the sustained-critical
// marker maintained. Ratio and counter fields are left untouched.
func ApplyDelta(s emotion.State, delta float64, now time.Time) emotion.State {
	out := s.Clone()
	out.Temperature = Shift(s.Temperature, delta)
	out.Zone = ZoneOf(out.Temperature)
	stamp := now
	out.LastUpdate = &stamp
	trackCritical(&out, now)
	return out
}

// Decay applies time decay since the last update, leaving LastUpdate
// unchanged when no time has elapsed.
func Decay(s emotion.State, now time.Time, rate float64) emotion.State {
	if s.LastUpdate == nil || !now.After(*s.LastUpdate) {
		return s
	}
	hours := now.Sub(*s.LastUpdate).Hours()
	cooled := ApplyTimeDecay(s.Temperature, hours, rate)
	if cooled == s.Temperature {
		return s
	}
	out := s.Clone()
	out.Temperature = cooled
	out.Zone = ZoneOf(cooled)
	stamp := now
	out.LastUpdate = &stamp
	trackCritical(&out, now)
	return out
}

func trackCritical(s *emotion.State, now time.Time) {
	if s.Zone != emotion.ZoneCritical {
		s.CriticalSince = nil
		return
	}
	if s.CriticalSince == nil {
		t := now
		s.CriticalSince = &t
	}
}

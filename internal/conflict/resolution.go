package conflict

import (
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// crisisFloor is the severity a CRISIS conflict keeps after a non-excellent
// attempt that would otherwise clear it.
const crisisFloor = 0.1

// SeverityReduction is the base severity removed by an attempt of quality q.
// Harmful attempts are negative and raise severity.
func SeverityReduction(q emotion.Quality) float64 {
	switch q {
	case emotion.QualityExcellent:
		return 1.0
	case emotion.QualityGood:
		return 0.6
	case emotion.QualityAdequate:
		return 0.3
	case emotion.QualityHarmful:
		return -0.2
	}
	return 0
}

// TemperatureDelta is the temperature change for an attempt of quality q.
// The engine never evaluates a poor attempt, so its +2 applies only to
// direct callers of Evaluate.
func TemperatureDelta(q emotion.Quality) float64 {
	switch q {
	case emotion.QualityExcellent:
		return -25
	case emotion.QualityGood:
		return -15
	case emotion.QualityAdequate:
		return -5
	case emotion.QualityPoor:
		return 2
	case emotion.QualityHarmful:
		return 5
	}
	return 0
}

// LevelMultiplier scales severity reduction by escalation level.
func LevelMultiplier(l emotion.EscalationLevel) float64 {
	switch l {
	case emotion.LevelDirect:
		return 0.8
	case emotion.LevelCrisis:
		return 0.5
	}
	return 1.0
}

// Evaluation is the outcome of one resolution attempt.
type Evaluation struct {
	ConflictID       uuid.UUID               `json:"conflict_id"`
	Quality          emotion.Quality         `json:"quality"`
	Level            emotion.EscalationLevel `json:"level"`
	SeverityBefore   float64                 `json:"severity_before"`
	SeverityAfter    float64                 `json:"severity_after"`
	Reduction        float64                 `json:"reduction"`
	TemperatureDelta float64                 `json:"temperature_delta"`
	Outcome          emotion.ResolutionType  `json:"outcome"`
	Resolved         bool                    `json:"resolved"`
	Conflict         Conflict                `json:"conflict"`
}

// EventKind implements the engine event contract.
func (e Evaluation) EventKind() string {
	return "conflict.resolution_" + string(e.Outcome)
}

// Evaluate scores an attempt of quality q against the open conflict c.
// Only an excellent attempt fully resolves a CRISIS conflict.
func Evaluate(c Conflict, q emotion.Quality, now time.Time) Evaluation {
	out := c.Clone()
	if !out.Level.Valid() {
		out.Level = emotion.LevelSubtle
	}
	if !q.Valid() {
		q = emotion.QualityPoor
	}

	reduction := SeverityReduction(q) * LevelMultiplier(out.Level)
	ev := Evaluation{
		ConflictID:       c.ID,
		Quality:          q,
		Level:            out.Level,
		SeverityBefore:   out.Severity,
		Reduction:        reduction,
		TemperatureDelta: TemperatureDelta(q),
	}

	out.ResolutionAttempts++
	newSev := clampSeverity(out.Severity - reduction)

	switch {
	case q == emotion.QualityExcellent:
		out.Severity = 0
		out.resolve(emotion.ResolutionFull, now)
	case newSev <= 0 && out.Level == emotion.LevelCrisis:
		out.Severity = crisisFloor
		out.setOutcome(emotion.ResolutionPartial)
	case newSev <= 0:
		out.Severity = 0
		out.resolve(emotion.ResolutionFull, now)
	case reduction > 0:
		out.Severity = newSev
		out.setOutcome(emotion.ResolutionPartial)
	default:
		out.Severity = newSev
		out.setOutcome(emotion.ResolutionFailed)
	}

	ev.SeverityAfter = out.Severity
	ev.Outcome = *out.ResolutionType
	ev.Resolved = out.Resolved
	ev.Conflict = out
	return ev
}

package engine

import (
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/gottman"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
	"github.com/MikeSquared-Agency/rapport/internal/temperature"
	"github.com/MikeSquared-Agency/rapport/internal/trigger"
)

// turnState carries the records being updated through one interaction.
type turnState struct {
	state   emotion.State
	open    *conflict.Conflict
	now     time.Time
	delta   float64
	source  Source
	changed bool
	events  []Event
}

func (t *turnState) setConflict(c conflict.Conflict) {
	t.open = &c
	t.changed = true
}

// repair applies the repair bypass: the quality tier alone sets the
// temperature change and the interaction counts as positive, whatever the
// metric deltas, horsemen or triggers of the same turn say.
func (e *Engine) repair(t *turnState, q emotion.Quality) {
	delta := conflict.TemperatureDelta(q)
	t.state = gottman.RecordInteraction(t.state, true, t.open != nil)

	if t.open != nil {
		ev := conflict.Evaluate(*t.open, q, t.now)
		t.setConflict(ev.Conflict)
		t.events = append(t.events, ev)
	}

	t.state = temperature.ApplyDelta(t.state, delta, t.now)
	rec := emotion.RepairRecord{Timestamp: t.now, Quality: q, TempDelta: delta}
	t.state.AppendRepair(rec)

	t.delta = delta
	t.source = SourceRepair
	t.events = append(t.events, RepairRecorded{Record: rec})
}

// update is the normal path. Score, horsemen, triggers, acknowledgment and
// failed resolution attempts feed the temperature engine; a turn with none
// of those falls back to the ratio tracker.
func (e *Engine) update(t *turnState, a scoring.ResponseAnalysis, scoreDelta float64, triggers []trigger.Trigger, attempt *emotion.Quality) {
	inConflict := t.open != nil
	horsemen := a.Horsemen()

	var delta float64
	signal := false

	if scoreDelta != 0 {
		delta += temperature.DeltaFromScore(scoreDelta)
		signal = true
	}
	for _, h := range horsemen {
		delta += temperature.DeltaFromHorseman(h)
		signal = true
	}
	for _, tr := range triggers {
		delta += temperature.DeltaFromTrigger(tr.Type)
		signal = true
	}
	if inConflict && a.HasBehavior(BehaviorAcknowledgment) {
		c, d := conflict.Acknowledge(*t.open, t.now)
		t.setConflict(c)
		t.events = append(t.events, Acknowledged{ConflictID: c.ID, Level: c.Level, TemperatureDelta: d})
		delta += d
		signal = true
	}
	if inConflict && attempt != nil && *attempt == emotion.QualityHarmful {
		ev := conflict.Evaluate(*t.open, *attempt, t.now)
		t.setConflict(ev.Conflict)
		t.events = append(t.events, ev)
		delta += ev.TemperatureDelta
		signal = true
	}

	t.state = recordPolarity(t.state, a.Deltas.Total(), inConflict)
	t.state.AddHorsemen(horsemen...)

	switch {
	case signal:
		t.source = SourceTemperature
	case a.Degraded():
		// Nothing to go on this turn.
		t.source = SourceNone
		return
	default:
		delta = gottman.TemperatureDelta(gottman.RollingCounters(t.state), inConflict)
		t.source = SourceRatio
	}

	t.state = temperature.ApplyDelta(t.state, delta, t.now)
	t.delta = delta
}

func recordPolarity(s emotion.State, total float64, inConflict bool) emotion.State {
	switch {
	case total > 0:
		return gottman.RecordInteraction(s, true, inConflict)
	case total < 0:
		return gottman.RecordInteraction(s, false, inConflict)
	}
	return s
}

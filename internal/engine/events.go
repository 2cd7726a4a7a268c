package engine

import (
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// Event is a discrete outcome of an interaction for the caller to persist
// or act on. Implementations: scoring.ScoreEvent, conflict.GenerationResult,
// conflict.EscalationResult, conflict.Evaluation, breakup.ThresholdResult,
// breakup.BreakupResult and the types below.
type Event interface {
	EventKind() string
}

// ZoneChange is emitted when the temperature moves into another zone.
type ZoneChange struct {
	From        emotion.Zone `json:"from"`
	To          emotion.Zone `json:"to"`
	Temperature float64      `json:"temperature"`
	Source      Source       `json:"source"`
}

func (ZoneChange) EventKind() string { return "temperature.zone_changed" }

// RepairRecorded is emitted for every repair bypass.
type RepairRecorded struct {
	Record emotion.RepairRecord `json:"record"`
}

func (RepairRecorded) EventKind() string { return "repair.recorded" }

// Acknowledged is emitted when the user acknowledges an open conflict.
type Acknowledged struct {
	ConflictID       uuid.UUID               `json:"conflict_id"`
	Level            emotion.EscalationLevel `json:"level"`
	TemperatureDelta float64                 `json:"temperature_delta"`
}

func (Acknowledged) EventKind() string { return "conflict.acknowledged" }

// Kinds lists the kinds of events, in order.
func Kinds(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.EventKind()
	}
	return out
}

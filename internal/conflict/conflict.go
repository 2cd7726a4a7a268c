// Package conflict instantiates conflicts from triggers, advances them
// through escalation levels and evaluates attempts to resolve them.
package conflict

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// Conflict is one open or resolved disagreement with a user.
type Conflict struct {
	ID                 uuid.UUID               `json:"id"`
	UserID             string                  `json:"user_id"`
	Type               emotion.ConflictType    `json:"type"`
	Severity           float64                 `json:"severity"`
	Level              emotion.EscalationLevel `json:"escalation_level"`
	TriggeredAt        time.Time               `json:"triggered_at"`
	LastEscalatedAt    *time.Time              `json:"last_escalated_at,omitempty"`
	AcknowledgedAt     *time.Time              `json:"acknowledged_at,omitempty"`
	ResolutionAttempts int                     `json:"resolution_attempts"`
	Resolved           bool                    `json:"resolved"`
	ResolutionType     *emotion.ResolutionType `json:"resolution_type,omitempty"`
	ResolvedAt         *time.Time              `json:"resolved_at,omitempty"`
	TriggerIDs         []uuid.UUID             `json:"trigger_ids"`
}

// New starts a SUBTLE conflict. Severity is clamped to [0,1].
func New(userID string, t emotion.ConflictType, severity float64, at time.Time, triggerIDs []uuid.UUID) Conflict {
	if triggerIDs == nil {
		triggerIDs = []uuid.UUID{}
	}
	return Conflict{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        t,
		Severity:    clampSeverity(severity),
		Level:       emotion.LevelSubtle,
		TriggeredAt: at,
		TriggerIDs:  triggerIDs,
	}
}

// Open reports whether the conflict is still unresolved.
func (c Conflict) Open() bool {
	return !c.Resolved
}

// Clone returns a deep copy.
func (c Conflict) Clone() Conflict {
	out := c
	out.LastEscalatedAt = clonePtr(c.LastEscalatedAt)
	out.AcknowledgedAt = clonePtr(c.AcknowledgedAt)
	out.ResolvedAt = clonePtr(c.ResolvedAt)
	if c.ResolutionType != nil {
		rt := *c.ResolutionType
		out.ResolutionType = &rt
	}
	out.TriggerIDs = append([]uuid.UUID{}, c.TriggerIDs...)
	return out
}

// LevelStartedAt is when the conflict entered its current level, or was
// last acknowledged, whichever is latest.
func (c Conflict) LevelStartedAt() time.Time {
	start := c.TriggeredAt
	if c.LastEscalatedAt != nil && c.LastEscalatedAt.After(start) {
		start = *c.LastEscalatedAt
	}
	if c.AcknowledgedAt != nil && c.AcknowledgedAt.After(start) {
		start = *c.AcknowledgedAt
	}
	return start
}

// HoursInLevel is the time spent in the current level. Never negative.
func (c Conflict) HoursInLevel(now time.Time) float64 {
	h := now.Sub(c.LevelStartedAt()).Hours()
	return math.Max(0, h)
}

func (c *Conflict) resolve(rt emotion.ResolutionType, now time.Time) {
	c.Resolved = true
	c.setOutcome(rt)
	t := now
	c.ResolvedAt = &t
}

func (c *Conflict) setOutcome(rt emotion.ResolutionType) {
	c.ResolutionType = &rt
}

func clampSeverity(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return math.Min(1, s)
}

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

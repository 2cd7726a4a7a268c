// Package trigger classifies a single user message, plus short-term context,
// into typed triggers with a severity in [0,1].
package trigger

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

const maxSnippetRunes = 120

// Trigger is one detected provocation.
type Trigger struct {
	ID         uuid.UUID           `json:"id"`
	Type       emotion.TriggerType `json:"type"`
	Severity   float64             `json:"severity"`
	DetectedAt time.Time           `json:"detected_at"`
	Context    map[string]any      `json:"context,omitempty"`
	Snippets   []string            `json:"snippets,omitempty"`
}

// New builds a trigger with a fresh id. Severity is clamped to [0,1].
func New(t emotion.TriggerType, severity float64, at time.Time, ctx map[string]any, snippets ...string) Trigger {
	out := Trigger{
		ID:         uuid.New(),
		Type:       t,
		Severity:   ClampSeverity(severity),
		DetectedAt: at,
		Context:    ctx,
	}
	for _, s := range snippets {
		out.Snippets = append(out.Snippets, snippet(s))
	}
	return out
}

// ClampSeverity bounds s to [0,1]; NaN becomes 0.
func ClampSeverity(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippetRunes {
		return s
	}
	return string(r[:maxSnippetRunes]) + "…"
}

// Context is the short-term conversational context a message is judged in.
type Context struct {
	// RecentMessages are the user's previous messages, oldest first, not
	// including the one being classified.
	RecentMessages []string `json:"recent_messages,omitempty"`

	// LastInteractionAt is when the user last wrote before this message.
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`

	SessionStartedAt    *time.Time `json:"session_started_at,omitempty"`
	SessionMessageCount int        `json:"session_message_count,omitempty"`
	SessionEnded        bool       `json:"session_ended,omitempty"`
}

// Types returns the distinct trigger types in ts, in first-seen order.
func Types(ts []Trigger) []emotion.TriggerType {
	var out []emotion.TriggerType
	seen := make(map[emotion.TriggerType]bool)
	for _, t := range ts {
		if !seen[t.Type] {
			seen[t.Type] = true
			out = append(out, t.Type)
		}
	}
	return out
}

// IDs returns the ids of ts.
func IDs(ts []Trigger) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

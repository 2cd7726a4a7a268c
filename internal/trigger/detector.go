package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// Source is a secondary trigger classifier, typically an LLM.
type Source interface {
	DetectTriggers(ctx context.Context, message string, c Context, chapter int) ([]Trigger, error)
}

// Detector runs the rule set and, when configured, a secondary Source.
type Detector struct {
	source Source
	logger *slog.Logger
}

// NewDetector returns a detector. source may be nil.
func NewDetector(source Source, logger *slog.Logger) *Detector {
	return &Detector{source: source, logger: logger}
}

// Detect classifies message. A failing secondary source is logged and its
// output discarded; the rule results are always returned.
func (d *Detector) Detect(ctx context.Context, message string, c Context, chapter int, now time.Time) []Trigger {
	found := Rules(message, c, chapter, now)
	if d.source == nil {
		return found
	}

	extra, err := d.source.DetectTriggers(ctx, message, c, chapter)
	if err != nil {
		d.logger.Warn("secondary trigger detection failed", "error", err)
		return found
	}
	return Merge(found, extra, now)
}

// Merge appends extra triggers whose type is not already in base. Invalid
// types are dropped and severities clamped.
func Merge(base, extra []Trigger, now time.Time) []Trigger {
	have := make(map[emotion.TriggerType]bool, len(base))
	for _, t := range base {
		have[t.Type] = true
	}
	out := append([]Trigger(nil), base...)
	for _, t := range extra {
		if !t.Type.Valid() || have[t.Type] {
			continue
		}
		have[t.Type] = true
		if t.DetectedAt.IsZero() {
			t.DetectedAt = now
		}
		t.Severity = ClampSeverity(t.Severity)
		out = append(out, t)
	}
	return out
}

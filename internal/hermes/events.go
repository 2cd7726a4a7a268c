package hermes

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// SubjectInteractionAnalyzed carries interactions to process.
	SubjectInteractionAnalyzed = "companion.interaction.analyzed"
	// SubjectEmotionPrefix prefixes every emitted emotion event subject.
	SubjectEmotionPrefix = "companion.emotion."
)

// EmotionSubject is the subject an event of the given kind is published on,
// e.g. companion.emotion.conflict.generated.
func EmotionSubject(kind string) string {
	return SubjectEmotionPrefix + kind
}

// EmotionEvent is one discrete outcome of an interaction.
type EmotionEvent struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Bus is the publishing half of Client.
type Bus interface {
	Publish(subject string, data any) error
}

// Publisher publishes emotion events to NATS.
type Publisher struct {
	bus Bus
}

func NewPublisher(bus Bus) *Publisher {
	return &Publisher{bus: bus}
}

// PublishEmotionEvents publishes every event, continuing past failures, and
// returns the joined errors.
func (p *Publisher) PublishEmotionEvents(events []EmotionEvent) error {
	var errs []error
	for _, ev := range events {
		if err := p.bus.Publish(EmotionSubject(ev.Kind), ev); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", ev.Kind, err))
		}
	}
	return errors.Join(errs...)
}

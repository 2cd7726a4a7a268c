package temperature

import "github.com/MikeSquared-Agency/rapport/internal/emotion"

// Reading is a temperature paired with its zone. Unlike the persisted
// emotion.State, a Reading always derives its zone from the value.
type Reading struct {
	Value float64      `json:"value"`
	Zone  emotion.Zone `json:"zone"`
}

// NewReading clamps v and derives the matching zone.
func NewReading(v float64) Reading {
	c := Clamp(v)
	return Reading{Value: c, Zone: ZoneOf(c)}
}

// ReadingOf reads the temperature of s, correcting a stale stored zone.
func ReadingOf(s emotion.State) Reading {
	return NewReading(s.Temperature)
}

// Change describes a single temperature move.
type Change struct {
	Before Reading `json:"before"`
	After  Reading `json:"after"`
	Delta  float64 `json:"delta"`
}

// ZoneChanged reports whether the move crossed a zone boundary.
func (c Change) ZoneChanged() bool {
	return c.Before.Zone != c.After.Zone
}

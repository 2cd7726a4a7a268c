package conflict

import (
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// Mode selects what drives escalation.
type Mode string

const (
	// ModeTemperature follows the temperature zone: HOT implies at least
	// DIRECT and CRITICAL implies CRISIS.
	ModeTemperature Mode = "temperature"
	// ModeTime escalates after a fixed time in each level.
	ModeTime Mode = "time"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeTemperature || m == ModeTime
}

// Midpoints of the 2-6h and 12-24h escalation windows.
const (
	SubtleToDirect = 4 * time.Hour
	DirectToCrisis = 18 * time.Hour
)

// Escalation outcomes.
const (
	ReasonAlreadyResolved   = "already_resolved"
	ReasonNaturalResolution = "natural_resolution"
	ReasonTimeThreshold     = "time_threshold"
	ReasonZone              = "temperature_zone"
	ReasonNoChange          = "no_change"
)

// NaturalResolutionProbability is the hourly chance a conflict at level l
// fades on its own.
func NaturalResolutionProbability(l emotion.EscalationLevel) float64 {
	switch l {
	case emotion.LevelSubtle:
		return 0.3
	case emotion.LevelDirect:
		return 0.1
	}
	return 0
}

// AcknowledgmentDelta is the temperature change when the user acknowledges
// a conflict at level l.
func AcknowledgmentDelta(l emotion.EscalationLevel) float64 {
	switch l {
	case emotion.LevelSubtle:
		return -10
	case emotion.LevelDirect:
		return -7
	case emotion.LevelCrisis:
		return -5
	}
	return 0
}

// EscalationResult reports a single escalation check.
type EscalationResult struct {
	ConflictID        uuid.UUID               `json:"conflict_id"`
	Escalated         bool                    `json:"escalated"`
	PreviousLevel     emotion.EscalationLevel `json:"previous_level"`
	NewLevel          emotion.EscalationLevel `json:"new_level"`
	NaturallyResolved bool                    `json:"naturally_resolved"`
	HoursInLevel      float64                 `json:"hours_in_level"`
	Reason            string                  `json:"reason"`
	Conflict          Conflict                `json:"conflict"`
}

// Changed reports whether the check altered the conflict.
func (r EscalationResult) Changed() bool {
	return r.Escalated || r.NaturallyResolved
}

// EventKind implements the engine event contract.
func (r EscalationResult) EventKind() string {
	if r.NaturallyResolved {
		return "conflict.resolved_naturally"
	}
	return "conflict.escalated"
}

// Escalator advances open conflicts. Checks are computed lazily from
// elapsed wall-clock time.
type Escalator struct {
	mode Mode
}

// NewEscalator returns an escalator; an unknown mode falls back to
// ModeTemperature.
func NewEscalator(mode Mode) *Escalator {
	if !mode.Valid() {
		mode = ModeTemperature
	}
	return &Escalator{mode: mode}
}

// Mode returns the escalation mode in use.
func (e *Escalator) Mode() Mode {
	return e.mode
}

// Check evaluates c at now. zone is only consulted in temperature mode.
func (e *Escalator) Check(c Conflict, zone emotion.Zone, now time.Time) EscalationResult {
	out := c.Clone()
	if !out.Level.Valid() {
		out.Level = emotion.LevelSubtle
	}
	res := EscalationResult{
		ConflictID:    c.ID,
		PreviousLevel: out.Level,
		NewLevel:      out.Level,
		HoursInLevel:  out.HoursInLevel(now),
		Reason:        ReasonNoChange,
	}

	if out.Resolved {
		res.Reason = ReasonAlreadyResolved
		res.Conflict = out
		return res
	}

	switch e.mode {
	case ModeTime:
		e.checkTime(&out, &res, now)
	default:
		e.checkZone(&out, &res, zone, now)
	}
	res.NewLevel = out.Level
	res.Conflict = out
	return res
}

func (e *Escalator) checkTime(c *Conflict, res *EscalationResult, now time.Time) {
	if naturallyResolves(*c, res.HoursInLevel) {
		c.resolve(emotion.ResolutionNatural, now)
		res.NaturallyResolved = true
		res.Reason = ReasonNaturalResolution
		return
	}

	var threshold time.Duration
	switch c.Level {
	case emotion.LevelSubtle:
		threshold = SubtleToDirect
	case emotion.LevelDirect:
		threshold = DirectToCrisis
	default:
		return
	}
	if now.Sub(c.LevelStartedAt()) >= threshold {
		escalate(c, c.Level+1, now)
		res.Escalated = true
		res.Reason = ReasonTimeThreshold
	}
}

func (e *Escalator) checkZone(c *Conflict, res *EscalationResult, zone emotion.Zone, now time.Time) {
	switch zone {
	case emotion.ZoneHot:
		if c.Level < emotion.LevelDirect {
			escalate(c, emotion.LevelDirect, now)
			res.Escalated = true
			res.Reason = ReasonZone
		}
	case emotion.ZoneCritical:
		if c.Level < emotion.LevelCrisis {
			escalate(c, emotion.LevelCrisis, now)
			res.Escalated = true
			res.Reason = ReasonZone
		}
	case emotion.ZoneCalm, emotion.ZoneWarm:
		if naturallyResolves(*c, res.HoursInLevel) {
			c.resolve(emotion.ResolutionNatural, now)
			res.NaturallyResolved = true
			res.Reason = ReasonNaturalResolution
		}
	}
}

func escalate(c *Conflict, to emotion.EscalationLevel, now time.Time) {
	c.Level = to
	t := now
	c.LastEscalatedAt = &t
}

// naturallyResolves rolls at most once per full hour in the level. The roll
// is seeded from the conflict id and the hour bucket, so repeating a check
// within the same hour gives the same answer.
func naturallyResolves(c Conflict, hoursInLevel float64) bool {
	p := NaturalResolutionProbability(c.Level)
	bucket := int64(math.Floor(hoursInLevel))
	if p <= 0 || bucket < 1 {
		return false
	}
	return NaturalRoll(c.ID, bucket) < p
}

// NaturalRoll is the deterministic draw in [0,1) for a conflict and hour
// bucket.
func NaturalRoll(id uuid.UUID, hourBucket int64) float64 {
	seed := xxhash.Sum64String(id.String() + ":" + strconv.FormatInt(hourBucket, 10))
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Float64()
}

// Acknowledge records that the user acknowledged c. The level timer resets
// and the returned delta cools the temperature; the level is unchanged and
// the conflict stays open.
func Acknowledge(c Conflict, now time.Time) (Conflict, float64) {
	out := c.Clone()
	if out.Resolved {
		return out, 0
	}
	t := now
	out.AcknowledgedAt = &t
	return out, AcknowledgmentDelta(out.Level)
}

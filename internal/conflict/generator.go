package conflict

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/temperature"
	"github.com/MikeSquared-Agency/rapport/internal/trigger"
)

const (
	minTriggerSeverity = 0.25
	maxCandidates      = 3
	recentConflicts    = 3
	recencyPenalty     = 0.5
)

// Generation outcomes.
const (
	ReasonCalm       = "calm_zone"
	ReasonExisting   = "existing_conflict"
	ReasonNoTriggers = "no_qualifying_triggers"
	ReasonRollFailed = "roll_failed"
	ReasonGenerated  = "generated"
)

// priority ranks conflict types when choosing which one to start.
func priority(t emotion.ConflictType) float64 {
	switch t {
	case emotion.ConflictTrust:
		return 4
	case emotion.ConflictBoundary:
		return 3
	case emotion.ConflictJealousy:
		return 2
	case emotion.ConflictAttention:
		return 1
	}
	return 0
}

// Roller draws uniform values in [0,1).
type Roller interface {
	Float64() float64
}

// GenerationInput is everything the generator looks at for one interaction.
type GenerationInput struct {
	UserID      string
	Temperature float64
	Triggers    []trigger.Trigger
	Open        *Conflict
	// RecentTypes are the types of the user's most recent conflicts, newest
	// first.
	RecentTypes []emotion.ConflictType
	Now         time.Time
}

// GenerationResult explains what the generator decided.
type GenerationResult struct {
	Generated   bool         `json:"generated"`
	Conflict    *Conflict    `json:"conflict,omitempty"`
	Reason      string       `json:"reason"`
	Zone        emotion.Zone `json:"zone"`
	Probability float64      `json:"probability"`
	Roll        float64      `json:"roll"`
}

// EventKind implements the engine event contract.
func (GenerationResult) EventKind() string { return "conflict.generated" }

// Generator decides whether a new conflict starts.
type Generator struct {
	roller Roller
}

// NewGenerator returns a generator. A nil roller uses a randomly seeded
// PCG source that is safe for concurrent use.
func NewGenerator(r Roller) *Generator {
	if r == nil {
		r = &lockedRoller{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return &Generator{roller: r}
}

type lockedRoller struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRoller) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Generate runs the generation gate.
func (g *Generator) Generate(in GenerationInput) GenerationResult {
	zone := temperature.ZoneOf(in.Temperature)
	res := GenerationResult{Zone: zone}

	if zone == emotion.ZoneCalm {
		res.Reason = ReasonCalm
		return res
	}
	if in.Open != nil && in.Open.Open() {
		existing := in.Open.Clone()
		res.Conflict = &existing
		res.Reason = ReasonExisting
		return res
	}

	candidates := qualifying(in.Triggers)
	if len(candidates) == 0 {
		res.Reason = ReasonNoTriggers
		return res
	}

	res.Probability = temperature.InjectionProbability(in.Temperature)
	res.Roll = g.roller.Float64()
	if res.Roll >= res.Probability {
		res.Reason = ReasonRollFailed
		return res
	}

	typ, sev, ids := selectType(candidates, in.RecentTypes)
	sev = min(sev, temperature.MaxSeverity(zone))
	c := New(in.UserID, typ, sev, in.Now, ids)

	res.Generated = true
	res.Conflict = &c
	res.Reason = ReasonGenerated
	return res
}

// qualifying keeps triggers at or above the minimum severity, strongest
// first, at most three.
func qualifying(ts []trigger.Trigger) []trigger.Trigger {
	var out []trigger.Trigger
	for _, t := range ts {
		if t.Severity >= minTriggerSeverity && emotion.ConflictTypeFor(t.Type) != "" {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b trigger.Trigger) int {
		return cmp.Compare(b.Severity, a.Severity)
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

type candidate struct {
	typ      emotion.ConflictType
	severity float64
	ids      []uuid.UUID
}

// selectType picks the conflict type with the highest severity*priority.
// Types among the three most recent conflicts are halved, provided some
// other type is available.
func selectType(ts []trigger.Trigger, recent []emotion.ConflictType) (emotion.ConflictType, float64, []uuid.UUID) {
	byType := make(map[emotion.ConflictType]*candidate)
	var order []*candidate
	for _, t := range ts {
		ct := emotion.ConflictTypeFor(t.Type)
		c, ok := byType[ct]
		if !ok {
			c = &candidate{typ: ct}
			byType[ct] = c
			order = append(order, c)
		}
		c.severity = max(c.severity, t.Severity)
		c.ids = append(c.ids, t.ID)
	}

	if len(recent) > recentConflicts {
		recent = recent[:recentConflicts]
	}
	isRecent := func(t emotion.ConflictType) bool { return slices.Contains(recent, t) }
	penalize := slices.ContainsFunc(order, func(c *candidate) bool { return !isRecent(c.typ) })

	var best *candidate
	bestScore := -1.0
	for _, c := range order {
		score := c.severity * priority(c.typ)
		if penalize && isRecent(c.typ) {
			score *= recencyPenalty
		}
		if score > bestScore || (score == bestScore && priority(c.typ) > priority(best.typ)) {
			best, bestScore = c, score
		}
	}
	return best.typ, best.severity, best.ids
}

package emotion

import "strings"

// Zone is the discrete band a temperature falls into.
type Zone string

const (
	ZoneCalm     Zone = "calm"
	ZoneWarm     Zone = "warm"
	ZoneHot      Zone = "hot"
	ZoneCritical Zone = "critical"
)

// Valid reports whether z is one of the four known zones.
func (z Zone) Valid() bool {
	switch z {
	case ZoneCalm, ZoneWarm, ZoneHot, ZoneCritical:
		return true
	}
	return false
}

// Horseman is one of the four toxic communication patterns.
type Horseman string

const (
	HorsemanCriticism     Horseman = "criticism"
	HorsemanContempt      Horseman = "contempt"
	HorsemanDefensiveness Horseman = "defensiveness"
	HorsemanStonewalling  Horseman = "stonewalling"
)

const horsemanTagPrefix = "horseman:"

// ParseHorsemanTag extracts a horseman from a behavior tag such as
// "horseman:contempt". "horseman_contempt" is accepted too. ok is false for
// any other tag.
func ParseHorsemanTag(tag string) (h Horseman, ok bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	rest, found := strings.CutPrefix(tag, "horseman")
	if !found || rest == "" || (rest[0] != ':' && rest[0] != '_') {
		return "", false
	}
	h = Horseman(rest[1:])
	switch h {
	case HorsemanCriticism, HorsemanContempt, HorsemanDefensiveness, HorsemanStonewalling:
		return h, true
	}
	return "", false
}

// Tag returns the behavior tag form, e.g. "horseman:contempt".
func (h Horseman) Tag() string {
	return horsemanTagPrefix + string(h)
}

// TriggerType classifies a single detected trigger.
type TriggerType string

const (
	TriggerDismissive TriggerType = "dismissive"
	TriggerNeglect    TriggerType = "neglect"
	TriggerJealousy   TriggerType = "jealousy"
	TriggerBoundary   TriggerType = "boundary"
	TriggerTrust      TriggerType = "trust"
)

// TriggerTypes lists every trigger type in declaration order.
var TriggerTypes = []TriggerType{TriggerDismissive, TriggerNeglect, TriggerJealousy, TriggerBoundary, TriggerTrust}

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerDismissive, TriggerNeglect, TriggerJealousy, TriggerBoundary, TriggerTrust:
		return true
	}
	return false
}

// ConflictType is the category of an instantiated conflict.
type ConflictType string

const (
	ConflictJealousy  ConflictType = "jealousy"
	ConflictAttention ConflictType = "attention"
	ConflictBoundary  ConflictType = "boundary"
	ConflictTrust     ConflictType = "trust"
)

func (c ConflictType) Valid() bool {
	switch c {
	case ConflictJealousy, ConflictAttention, ConflictBoundary, ConflictTrust:
		return true
	}
	return false
}

// ConflictTypeFor maps a trigger onto the conflict it can start.
func ConflictTypeFor(t TriggerType) ConflictType {
	switch t {
	case TriggerDismissive, TriggerNeglect:
		return ConflictAttention
	case TriggerJealousy:
		return ConflictJealousy
	case TriggerBoundary:
		return ConflictBoundary
	case TriggerTrust:
		return ConflictTrust
	}
	return ""
}

// EscalationLevel is the ordered severity state of an open conflict.
type EscalationLevel int

const (
	LevelSubtle EscalationLevel = 1
	LevelDirect EscalationLevel = 2
	LevelCrisis EscalationLevel = 3
)

func (l EscalationLevel) String() string {
	switch l {
	case LevelSubtle:
		return "subtle"
	case LevelDirect:
		return "direct"
	case LevelCrisis:
		return "crisis"
	}
	return "unknown"
}

func (l EscalationLevel) Valid() bool {
	return l >= LevelSubtle && l <= LevelCrisis
}

// ResolutionType records how a conflict ended (or failed to).
type ResolutionType string

const (
	ResolutionFull    ResolutionType = "full"
	ResolutionPartial ResolutionType = "partial"
	ResolutionFailed  ResolutionType = "failed"
	ResolutionNatural ResolutionType = "natural"
)

// Quality is the tier of a repair or resolution attempt. Repair attempts
// reported by the analysis only ever use the first three tiers.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityAdequate  Quality = "adequate"
	QualityPoor      Quality = "poor"
	QualityHarmful   Quality = "harmful"
)

func (q Quality) Valid() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityAdequate, QualityPoor, QualityHarmful:
		return true
	}
	return false
}

// IsRepair reports whether q is one of the tiers that count as a genuine
// repair attempt.
func (q Quality) IsRepair() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityAdequate:
		return true
	}
	return false
}

// ParseQuality normalises free-form input into a Quality.
func ParseQuality(s string) (Quality, bool) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	return q, q.Valid()
}

// Package breakup decides when the relationship is in danger and when it
// ends, from the composite score and sustained extreme temperature.
package breakup

import (
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

const (
	BreakupThreshold  = 10.0
	CriticalThreshold = 15.0
	WarningThreshold  = 20.0

	// BreakupTemperature must be strictly exceeded for BreakupSustain.
	BreakupTemperature = 90.0
	BreakupSustain     = 48 * time.Hour
	WarningSustain     = 24 * time.Hour
)

// Status is the health band of the relationship.
type Status string

const (
	StatusOK        Status = "ok"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusTriggered Status = "triggered"
)

func (s Status) rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusTriggered:
		return 3
	}
	return 0
}

// Reasons reported in ThresholdResult.
const (
	ReasonScore       = "score"
	ReasonTemperature = "sustained_critical_temperature"
)

// ThresholdResult is one threshold evaluation.
type ThresholdResult struct {
	Status        Status   `json:"status"`
	ShouldWarn    bool     `json:"should_warn"`
	ShouldBreakup bool     `json:"should_breakup"`
	Score         float64  `json:"score"`
	Temperature   float64  `json:"temperature"`
	CriticalHours *float64 `json:"critical_hours,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// EventKind implements the engine event contract.
func (r ThresholdResult) EventKind() string {
	return "threshold." + string(r.Status)
}

// BreakupResult is the terminal game-over event.
type BreakupResult struct {
	UserID       string               `json:"user_id"`
	Reason       string               `json:"reason"`
	ConflictType emotion.ConflictType `json:"conflict_type,omitempty"`
	Message      string               `json:"message"`
	Score        float64              `json:"score"`
	Temperature  float64              `json:"temperature"`
	At           time.Time            `json:"at"`
}

// EventKind implements the engine event contract.
func (BreakupResult) EventKind() string { return "breakup.triggered" }

// CheckScore classifies the composite score.
func CheckScore(score float64) ThresholdResult {
	res := ThresholdResult{Status: StatusOK, Score: score}
	switch {
	case score < BreakupThreshold:
		res.Status = StatusTriggered
		res.ShouldBreakup = true
	case score < CriticalThreshold:
		res.Status = StatusCritical
		res.ShouldWarn = true
	case score < WarningThreshold:
		res.Status = StatusWarning
		res.ShouldWarn = true
	}
	if res.Status != StatusOK {
		res.Reason = ReasonScore
	}
	return res
}

// CheckTemperature evaluates sustained CRITICAL temperature. It only looks
// at states whose stored zone is CRITICAL and that carry a sustained-critical
// timestamp.
func CheckTemperature(s emotion.State, now time.Time) ThresholdResult {
	res := ThresholdResult{Status: StatusOK, Temperature: s.Temperature}
	if s.Zone != emotion.ZoneCritical || s.CriticalSince == nil {
		return res
	}
	sustained := now.Sub(*s.CriticalSince)
	hours := sustained.Hours()
	res.CriticalHours = &hours

	switch {
	case s.Temperature > BreakupTemperature && sustained > BreakupSustain:
		res.Status = StatusTriggered
		res.ShouldBreakup = true
		res.Reason = ReasonTemperature
	case sustained > WarningSustain:
		res.Status = StatusWarning
		res.ShouldWarn = true
		res.Reason = ReasonTemperature
	}
	return res
}

// Manager combines the score and temperature rules.
type Manager struct{}

// NewManager returns a Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Evaluate returns the more severe of the two checks, and a breakup event
// when either triggers. openType is the type of the conflict in play, if
// any, and selects the closing message pool.
func (m *Manager) Evaluate(userID string, score float64, s emotion.State, openType emotion.ConflictType, now time.Time) (ThresholdResult, *BreakupResult) {
	byScore := CheckScore(score)
	byTemp := CheckTemperature(s, now)

	res := byScore
	if byTemp.Status.rank() > byScore.Status.rank() {
		res = byTemp
		res.Score = score
	} else {
		res.Temperature = s.Temperature
		res.CriticalHours = byTemp.CriticalHours
	}
	res.ShouldBreakup = byScore.ShouldBreakup || byTemp.ShouldBreakup
	res.ShouldWarn = !res.ShouldBreakup && (byScore.ShouldWarn || byTemp.ShouldWarn)

	if !res.ShouldBreakup {
		return res, nil
	}
	return res, &BreakupResult{
		UserID:       userID,
		Reason:       res.Reason,
		ConflictType: openType,
		Message:      ClosingMessage(userID, openType),
		Score:        score,
		Temperature:  s.Temperature,
		At:           now,
	}
}

// ClosingMessage picks the breakup message for a user. The choice is stable
// per user.
func ClosingMessage(userID string, t emotion.ConflictType) string {
	pool, ok := closingMessages[t]
	if !ok || len(pool) == 0 {
		pool = genericClosing
	}
	return pool[xxhash.Sum64String(userID)%uint64(len(pool))]
}

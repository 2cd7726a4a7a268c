// Package emotion holds the persisted emotional-state record and the closed
// vocabulary (zones, horsemen, trigger and conflict types) shared by the
// relationship-dynamics components.
package emotion

import (
	"math"
	"sort"
	"time"
)

const (
	// RatioInfinite is the persisted stand-in for an unboundedly favorable
	// positive:negative ratio. Raw infinity is never written.
	RatioInfinite = 999.0

	// RatioTargetConflict and RatioTargetStable are the healthy ratio targets
	// while a conflict is open and otherwise.
	RatioTargetConflict = 5.0
	RatioTargetStable   = 20.0

	// MaxRepairHistory bounds the repair log kept on the record.
	MaxRepairHistory = 20
)

// RepairRecord is one entry of the repair log.
type RepairRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Quality   Quality   `json:"quality"`
	TempDelta float64   `json:"temp_delta"`
}

// State is the per-user emotional record. Zone is stored alongside
// Temperature and is not re-derived on read; callers may observe a mismatch
// on records written by older code.
type State struct {
	Temperature      float64        `json:"temperature"`
	Zone             Zone           `json:"zone"`
	PositiveCount    int            `json:"positive_count"`
	NegativeCount    int            `json:"negative_count"`
	SessionPositive  int            `json:"session_positive"`
	SessionNegative  int            `json:"session_negative"`
	Ratio            float64        `json:"ratio"`
	RatioTarget      float64        `json:"ratio_target"`
	WindowStart      time.Time      `json:"window_start"`
	HorsemenDetected []string       `json:"horsemen_detected"`
	RepairHistory    []RepairRecord `json:"repair_history"`
	LastUpdate       *time.Time     `json:"last_update"`
	CriticalSince    *time.Time     `json:"critical_since"`
}

// Default returns the record created on first contact.
func Default() State {
	return State{
		Temperature:      0,
		Zone:             ZoneCalm,
		RatioTarget:      RatioTargetStable,
		HorsemenDetected: []string{},
		RepairHistory:    []RepairRecord{},
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// input's slices or timestamps.
func (s State) Clone() State {
	out := s
	out.HorsemenDetected = append([]string{}, s.HorsemenDetected...)
	out.RepairHistory = append([]RepairRecord{}, s.RepairHistory...)
	if s.LastUpdate != nil {
		t := *s.LastUpdate
		out.LastUpdate = &t
	}
	if s.CriticalSince != nil {
		t := *s.CriticalSince
		out.CriticalSince = &t
	}
	return out
}

// AddHorsemen merges tags into the accumulated set, kept sorted and unique.
func (s *State) AddHorsemen(hs ...Horseman) {
	if len(hs) == 0 {
		return
	}
	seen := make(map[string]bool, len(s.HorsemenDetected)+len(hs))
	for _, h := range s.HorsemenDetected {
		seen[h] = true
	}
	for _, h := range hs {
		if !seen[string(h)] {
			seen[string(h)] = true
			s.HorsemenDetected = append(s.HorsemenDetected, string(h))
		}
	}
	sort.Strings(s.HorsemenDetected)
}

// AppendRepair logs a repair attempt, dropping the oldest entries beyond
// MaxRepairHistory.
func (s *State) AppendRepair(r RepairRecord) {
	s.RepairHistory = append(s.RepairHistory, r)
	if n := len(s.RepairHistory); n > MaxRepairHistory {
		s.RepairHistory = append([]RepairRecord{}, s.RepairHistory[n-MaxRepairHistory:]...)
	}
}

// sanitize enforces the persisted-form invariants: finite, clamped
// temperature, non-negative counters, finite non-negative ratio.
func (s *State) sanitize() {
	switch {
	case math.IsNaN(s.Temperature):
		s.Temperature = 0
	case s.Temperature < 0:
		s.Temperature = 0
	case s.Temperature > 100:
		s.Temperature = 100
	}
	s.PositiveCount = max(s.PositiveCount, 0)
	s.NegativeCount = max(s.NegativeCount, 0)
	s.SessionPositive = max(s.SessionPositive, 0)
	s.SessionNegative = max(s.SessionNegative, 0)
	switch {
	case math.IsNaN(s.Ratio) || s.Ratio < 0:
		s.Ratio = 0
	case math.IsInf(s.Ratio, 1) || s.Ratio > RatioInfinite:
		s.Ratio = RatioInfinite
	}
	if math.IsNaN(s.RatioTarget) || math.IsInf(s.RatioTarget, 0) || s.RatioTarget <= 0 {
		s.RatioTarget = RatioTargetStable
	}
	if s.HorsemenDetected == nil {
		s.HorsemenDetected = []string{}
	}
	if s.RepairHistory == nil {
		s.RepairHistory = []RepairRecord{}
	}
}

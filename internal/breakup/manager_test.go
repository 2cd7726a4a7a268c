package breakup

import (
	"slices"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

var now = time.Date(2026, 4, 2, 20, 0, 0, 0, time.UTC)

func criticalState(temp float64, sustained time.Duration) emotion.State {
	s := emotion.Default()
	s.Temperature = temp
	s.Zone = emotion.ZoneCritical
	since := now.Add(-sustained)
	s.CriticalSince = &since
	return s
}

func TestCheckScore(t *testing.T) {
	tests := []struct {
		score   float64
		status  Status
		warn    bool
		breakup bool
	}{
		{50, StatusOK, false, false},
		{20, StatusOK, false, false},
		{19.99, StatusWarning, true, false},
		{15, StatusWarning, true, false},
		{14.5, StatusCritical, true, false},
		{10, StatusCritical, true, false},
		{9.99, StatusTriggered, false, true},
		{0, StatusTriggered, false, true},
	}
	for _, tt := range tests {
		got := CheckScore(tt.score)
		if got.Status != tt.status || got.ShouldWarn != tt.warn || got.ShouldBreakup != tt.breakup {
			t.Errorf("CheckScore(%v) = %+v, want %s warn=%v breakup=%v", tt.score, got, tt.status, tt.warn, tt.breakup)
		}
	}
}

func TestCheckTemperature(t *testing.T) {
	tests := []struct {
		name    string
		state   emotion.State
		warn    bool
		breakup bool
	}{
		{"exactly 90 does not break up", criticalState(90, 49*time.Hour), true, false},
		{"95 for 49h breaks up", criticalState(95, 49*time.Hour), false, true},
		{"95 for exactly 48h only warns", criticalState(95, 48*time.Hour), true, false},
		{"critical for 25h warns", criticalState(80, 25*time.Hour), true, false},
		{"critical for exactly 24h is fine", criticalState(80, 24*time.Hour), false, false},
		{"critical for 2h is fine", criticalState(99, 2*time.Hour), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckTemperature(tt.state, now)
			if got.ShouldWarn != tt.warn || got.ShouldBreakup != tt.breakup {
				t.Errorf("got warn=%v breakup=%v, want %v %v", got.ShouldWarn, got.ShouldBreakup, tt.warn, tt.breakup)
			}
		})
	}
}

func TestCheckTemperature_RequiresStoredCriticalZone(t *testing.T) {
	s := criticalState(95, 72*time.Hour)
	s.Zone = emotion.ZoneHot
	if got := CheckTemperature(s, now); got.Status != StatusOK {
		t.Errorf("stored zone %s should not be evaluated, got %+v", s.Zone, got)
	}

	s = criticalState(95, 72*time.Hour)
	s.CriticalSince = nil
	if got := CheckTemperature(s, now); got.Status != StatusOK {
		t.Errorf("missing timestamp should not be evaluated, got %+v", got)
	}
}

func TestManager_Evaluate(t *testing.T) {
	m := NewManager()

	t.Run("healthy", func(t *testing.T) {
		res, b := m.Evaluate("u1", 60, emotion.Default(), "", now)
		if res.Status != StatusOK || b != nil {
			t.Errorf("got %+v, %+v", res, b)
		}
	})

	t.Run("temperature breakup with healthy score", func(t *testing.T) {
		res, b := m.Evaluate("u1", 60, criticalState(95, 49*time.Hour), emotion.ConflictTrust, now)
		if !res.ShouldBreakup || res.ShouldWarn || b == nil {
			t.Fatalf("got %+v, %+v", res, b)
		}
		if b.Reason != ReasonTemperature || b.ConflictType != emotion.ConflictTrust {
			t.Errorf("breakup = %+v", b)
		}
		if !slices.Contains(closingMessages[emotion.ConflictTrust], b.Message) {
			t.Errorf("message %q not from the trust pool", b.Message)
		}
	})

	t.Run("score warning and temperature warning", func(t *testing.T) {
		res, b := m.Evaluate("u1", 14, criticalState(90, 49*time.Hour), "", now)
		if res.Status != StatusCritical || !res.ShouldWarn || b != nil {
			t.Errorf("got %+v, %+v", res, b)
		}
		if res.CriticalHours == nil || *res.CriticalHours != 49 {
			t.Errorf("critical hours = %v", res.CriticalHours)
		}
	})

	t.Run("score breakup uses generic pool", func(t *testing.T) {
		res, b := m.Evaluate("u1", 5, emotion.Default(), "", now)
		if !res.ShouldBreakup || b == nil {
			t.Fatalf("got %+v, %+v", res, b)
		}
		if !slices.Contains(genericClosing, b.Message) {
			t.Errorf("message %q not from the generic pool", b.Message)
		}
		if b.EventKind() != "breakup.triggered" {
			t.Errorf("event kind = %s", b.EventKind())
		}
	})
}

func TestClosingMessage_StablePerUser(t *testing.T) {
	a := ClosingMessage("user-42", emotion.ConflictJealousy)
	b := ClosingMessage("user-42", emotion.ConflictJealousy)
	if a != b {
		t.Errorf("closing message changed between calls: %q vs %q", a, b)
	}
}

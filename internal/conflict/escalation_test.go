package conflict

import (
	"testing"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// conflictAt returns a conflict at level whose natural-resolution roll for
// every listed hour bucket either stays (resolves=false) or falls (true)
// below the level's probability.
func conflictAt(t *testing.T, level emotion.EscalationLevel, resolves bool, buckets ...int64) Conflict {
	t.Helper()
	p := NaturalResolutionProbability(level)
	for range 1000 {
		c := New("u1", emotion.ConflictAttention, 0.5, t0, nil)
		c.Level = level
		ok := true
		for _, b := range buckets {
			if (NaturalRoll(c.ID, b) < p) != resolves {
				ok = false
				break
			}
		}
		if ok {
			return c
		}
	}
	t.Fatal("no suitable conflict id found")
	return Conflict{}
}

func TestNaturalRoll_Deterministic(t *testing.T) {
	c := New("u1", emotion.ConflictTrust, 0.5, t0, nil)
	a := NaturalRoll(c.ID, 3)
	b := NaturalRoll(c.ID, 3)
	if a != b {
		t.Errorf("rolls differ for same bucket: %v vs %v", a, b)
	}
	if a < 0 || a >= 1 {
		t.Errorf("roll %v out of [0,1)", a)
	}
}

func TestCheck_TimeMode(t *testing.T) {
	esc := NewEscalator(ModeTime)

	t.Run("below threshold never escalates", func(t *testing.T) {
		c := conflictAt(t, emotion.LevelSubtle, false, 3)
		res := esc.Check(c, emotion.ZoneHot, t0.Add(3*time.Hour+59*time.Minute))
		if res.Escalated || res.Conflict.Level != emotion.LevelSubtle {
			t.Errorf("escalated below threshold: %+v", res)
		}
	})

	t.Run("threshold escalates exactly one level", func(t *testing.T) {
		c := conflictAt(t, emotion.LevelSubtle, false, 20)
		now := t0.Add(20 * time.Hour)
		res := esc.Check(c, emotion.ZoneCritical, now)
		if !res.Escalated || res.NewLevel != emotion.LevelDirect || res.PreviousLevel != emotion.LevelSubtle {
			t.Fatalf("got %+v, want subtle -> direct", res)
		}
		if res.Conflict.LastEscalatedAt == nil || !res.Conflict.LastEscalatedAt.Equal(now) {
			t.Errorf("last escalated = %v, want %v", res.Conflict.LastEscalatedAt, now)
		}
		if res.Reason != ReasonTimeThreshold {
			t.Errorf("reason = %s", res.Reason)
		}
	})

	t.Run("threshold boundary is inclusive", func(t *testing.T) {
		c := conflictAt(t, emotion.LevelSubtle, false, 4)
		res := esc.Check(c, emotion.ZoneCalm, t0.Add(SubtleToDirect))
		if !res.Escalated {
			t.Errorf("expected escalation at exactly %v", SubtleToDirect)
		}
	})

	t.Run("direct to crisis counts from last escalation", func(t *testing.T) {
		c := conflictAt(t, emotion.LevelDirect, false, 17, 18)
		esc1 := t0.Add(5 * time.Hour)
		c.LastEscalatedAt = &esc1

		if res := esc.Check(c, emotion.ZoneCalm, esc1.Add(17*time.Hour)); res.Escalated {
			t.Errorf("escalated after 17h in direct")
		}
		res := esc.Check(c, emotion.ZoneCalm, esc1.Add(18*time.Hour))
		if !res.Escalated || res.NewLevel != emotion.LevelCrisis {
			t.Errorf("got %+v, want direct -> crisis", res)
		}
	})

	t.Run("crisis is terminal", func(t *testing.T) {
		c := New("u1", emotion.ConflictTrust, 0.9, t0, nil)
		c.Level = emotion.LevelCrisis
		res := esc.Check(c, emotion.ZoneCalm, t0.Add(500*time.Hour))
		if res.Changed() {
			t.Errorf("crisis changed: %+v", res)
		}
	})

	t.Run("natural resolution", func(t *testing.T) {
		c := conflictAt(t, emotion.LevelSubtle, true, 2)
		now := t0.Add(2*time.Hour + 30*time.Minute)
		res := esc.Check(c, emotion.ZoneCalm, now)
		if !res.NaturallyResolved || !res.Conflict.Resolved || res.Escalated {
			t.Fatalf("got %+v, want natural resolution", res)
		}
		if *res.Conflict.ResolutionType != emotion.ResolutionNatural {
			t.Errorf("resolution type = %s", *res.Conflict.ResolutionType)
		}
		if res.EventKind() != "conflict.resolved_naturally" {
			t.Errorf("event kind = %s", res.EventKind())
		}
	})

	t.Run("no roll inside the first hour", func(t *testing.T) {
		c := conflictAt(t, emotion.LevelSubtle, true, 0)
		res := esc.Check(c, emotion.ZoneCalm, t0.Add(59*time.Minute))
		if res.Changed() {
			t.Errorf("changed within first hour: %+v", res)
		}
	})

	t.Run("repeated checks in the same hour agree", func(t *testing.T) {
		c := New("u1", emotion.ConflictTrust, 0.5, t0, nil)
		a := esc.Check(c, emotion.ZoneCalm, t0.Add(2*time.Hour+5*time.Minute))
		b := esc.Check(c, emotion.ZoneCalm, t0.Add(2*time.Hour+55*time.Minute))
		if a.NaturallyResolved != b.NaturallyResolved {
			t.Errorf("same-hour checks disagree: %v vs %v", a.NaturallyResolved, b.NaturallyResolved)
		}
	})

	t.Run("acknowledgment resets the timer", func(t *testing.T) {
		c := conflictAt(t, emotion.LevelSubtle, false, 2)
		c, _ = Acknowledge(c, t0.Add(3*time.Hour))
		res := esc.Check(c, emotion.ZoneCalm, t0.Add(5*time.Hour))
		if res.Escalated {
			t.Errorf("escalated 2h after acknowledgment")
		}
		if res.HoursInLevel != 2 {
			t.Errorf("hours in level = %v, want 2", res.HoursInLevel)
		}
	})

	t.Run("resolved conflicts are left alone", func(t *testing.T) {
		c := New("u1", emotion.ConflictTrust, 0.5, t0, nil)
		c.Resolved = true
		res := esc.Check(c, emotion.ZoneCritical, t0.Add(100*time.Hour))
		if res.Changed() || res.Reason != ReasonAlreadyResolved {
			t.Errorf("got %+v", res)
		}
	})
}

func TestCheck_TemperatureMode(t *testing.T) {
	esc := NewEscalator(ModeTemperature)

	tests := []struct {
		name  string
		level emotion.EscalationLevel
		zone  emotion.Zone
		want  emotion.EscalationLevel
	}{
		{"hot raises subtle to direct", emotion.LevelSubtle, emotion.ZoneHot, emotion.LevelDirect},
		{"hot keeps direct", emotion.LevelDirect, emotion.ZoneHot, emotion.LevelDirect},
		{"hot never lowers crisis", emotion.LevelCrisis, emotion.ZoneHot, emotion.LevelCrisis},
		{"critical jumps to crisis", emotion.LevelSubtle, emotion.ZoneCritical, emotion.LevelCrisis},
		{"warm does not escalate", emotion.LevelSubtle, emotion.ZoneWarm, emotion.LevelSubtle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := conflictAt(t, tt.level, false, 10)
			res := esc.Check(c, tt.zone, t0.Add(10*time.Hour))
			if res.NewLevel != tt.want {
				t.Errorf("level = %s, want %s", res.NewLevel, tt.want)
			}
			if res.Escalated != (tt.want != tt.level) {
				t.Errorf("escalated = %v", res.Escalated)
			}
		})
	}

	t.Run("natural resolution only when calm or warm", func(t *testing.T) {
		c := conflictAt(t, emotion.LevelDirect, true, 6)
		now := t0.Add(6 * time.Hour)
		if res := esc.Check(c, emotion.ZoneHot, now); res.NaturallyResolved {
			t.Error("resolved naturally while hot")
		}
		if res := esc.Check(c, emotion.ZoneWarm, now); !res.NaturallyResolved {
			t.Error("expected natural resolution while warm")
		}
	})
}

func TestAcknowledge(t *testing.T) {
	want := map[emotion.EscalationLevel]float64{
		emotion.LevelSubtle: -10,
		emotion.LevelDirect: -7,
		emotion.LevelCrisis: -5,
	}
	for level, delta := range want {
		c := New("u1", emotion.ConflictBoundary, 0.5, t0, nil)
		c.Level = level
		now := t0.Add(time.Hour)
		got, d := Acknowledge(c, now)
		if d != delta {
			t.Errorf("%s: delta = %v, want %v", level, d, delta)
		}
		if got.Level != level || got.Resolved {
			t.Errorf("%s: level or resolution changed: %+v", level, got)
		}
		if got.AcknowledgedAt == nil || !got.AcknowledgedAt.Equal(now) {
			t.Errorf("%s: acknowledged at = %v", level, got.AcknowledgedAt)
		}
		if c.AcknowledgedAt != nil {
			t.Errorf("%s: input mutated", level)
		}
	}
}

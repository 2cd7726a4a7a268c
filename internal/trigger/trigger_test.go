package trigger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

var now = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func severityOf(ts []Trigger, typ emotion.TriggerType) (float64, bool) {
	for _, t := range ts {
		if t.Type == typ {
			return t.Severity, true
		}
	}
	return 0, false
}

func TestRules_Dismissive(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		recent  []string
		chapter int
		want    float64
	}{
		{"short with space", "ok sure", nil, 4, 0.3},
		{"no spaces", "whatever", nil, 4, 0.4},
		{"minimal", "ok", nil, 4, 0.5},
		{"minimal early chapter", "ok", nil, 1, 0.75},
		{"late chapter dampens", "whatever", nil, 5, 0.32},
		{"short pattern", "yes", []string{"hi", "fine", "that sounds like a lovely plan to me"}, 4, 0.6},
		{"pattern only counts last five", "sounds good, see you there tonight", []string{"hi", "yo", "k", "a much longer message here", "another longer message", "and one more long one"}, 4, 0},
		{"long message", "I had a really lovely day at the museum today", nil, 4, 0},
		{"empty message", "", nil, 4, 0},
		{"empty message after short ones", "  ", []string{"k", "ok"}, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := severityOf(Rules(tt.msg, Context{RecentMessages: tt.recent}, tt.chapter, now), emotion.TriggerDismissive)
			if tt.want == 0 {
				if ok {
					t.Fatalf("unexpected dismissive trigger with severity %v", got)
				}
				return
			}
			if !ok {
				t.Fatal("expected dismissive trigger")
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("severity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRules_Neglect(t *testing.T) {
	long := "I had a really lovely day at the museum today"
	tests := []struct {
		name string
		c    Context
		want float64
	}{
		{"no history", Context{}, 0},
		{"under a day", Context{LastInteractionAt: ago(23 * time.Hour)}, 0},
		{"exactly a day", Context{LastInteractionAt: ago(24 * time.Hour)}, 0.45},
		{"a day and a half", Context{LastInteractionAt: ago(36 * time.Hour)}, 0.525},
		{"capped", Context{LastInteractionAt: ago(200 * time.Hour)}, 0.9},
		{"short ended session", Context{SessionStartedAt: ago(3 * time.Minute), SessionMessageCount: 2, SessionEnded: true}, 0.25},
		{"short session still open", Context{SessionStartedAt: ago(3 * time.Minute), SessionMessageCount: 2}, 0},
		{"ended session with many messages", Context{SessionStartedAt: ago(3 * time.Minute), SessionMessageCount: 8, SessionEnded: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := severityOf(Rules(long, tt.c, 4, now), emotion.TriggerNeglect)
			if tt.want == 0 {
				if ok {
					t.Fatalf("unexpected neglect trigger with severity %v", got)
				}
				return
			}
			if !ok || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("severity = %v (found %v), want %v", got, ok, tt.want)
			}
		})
	}
}

func TestRules_Keywords(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		chapter int
		typ     emotion.TriggerType
		want    float64
	}{
		{"jealousy two matches", "I was hanging out with my ex last night and it was fun", 4, emotion.TriggerJealousy, 0.55},
		{"jealousy whole words only", "I passed my exam and celebrated with everyone at home", 4, emotion.TriggerJealousy, 0},
		{"boundary late chapter", "Shut up, you have to listen to me right now", 3, emotion.TriggerBoundary, 0.605},
		{"boundary early chapter clamps", "Shut up, you have to listen to me right now", 1, emotion.TriggerBoundary, 1},
		{"boundary case folded", "SHUT UP already, I am tired of this conversation", 4, emotion.TriggerBoundary, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := severityOf(Rules(tt.msg, Context{}, tt.chapter, now), tt.typ)
			if tt.want == 0 {
				if ok {
					t.Fatalf("unexpected %s trigger with severity %v", tt.typ, got)
				}
				return
			}
			if !ok || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("severity = %v (found %v), want %v", got, ok, tt.want)
			}
		})
	}
}

func TestNew_ClampsAndTruncates(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}
	tr := New(emotion.TriggerTrust, 4, now, nil, string(long))
	if tr.Severity != 1 {
		t.Errorf("severity = %v, want 1", tr.Severity)
	}
	if len([]rune(tr.Snippets[0])) != maxSnippetRunes+1 {
		t.Errorf("snippet length = %d", len([]rune(tr.Snippets[0])))
	}
	if New(emotion.TriggerTrust, math.NaN(), now, nil).Severity != 0 {
		t.Error("NaN severity should clamp to 0")
	}
}

type fakeSource struct {
	triggers []Trigger
	err      error
}

func (f fakeSource) DetectTriggers(context.Context, string, Context, int) ([]Trigger, error) {
	return f.triggers, f.err
}

func TestDetector_SecondarySource(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	src := fakeSource{triggers: []Trigger{
		{Type: emotion.TriggerDismissive, Severity: 0.9},
		{Type: emotion.TriggerTrust, Severity: 1.4},
		{Type: emotion.TriggerTrust, Severity: 0.2},
		{Type: "gaslighting", Severity: 0.5},
	}}

	got := NewDetector(src, logger).Detect(context.Background(), "ok", Context{}, 4, now)

	types := Types(got)
	if len(types) != 2 || types[0] != emotion.TriggerDismissive || types[1] != emotion.TriggerTrust {
		t.Fatalf("types = %v, want [dismissive trust]", types)
	}
	if sev, _ := severityOf(got, emotion.TriggerDismissive); sev != 0.5 {
		t.Errorf("rule severity replaced by duplicate: %v", sev)
	}
	if sev, _ := severityOf(got, emotion.TriggerTrust); sev != 1 {
		t.Errorf("trust severity = %v, want clamped 1", sev)
	}
	if got[1].DetectedAt != now {
		t.Errorf("detected at = %v, want %v", got[1].DetectedAt, now)
	}
}

func TestDetector_SourceFailureKeepsRules(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	got := NewDetector(fakeSource{err: errors.New("timeout")}, logger).Detect(context.Background(), "ok", Context{}, 4, now)
	if len(got) != 1 || got[0].Type != emotion.TriggerDismissive {
		t.Errorf("got %+v, want the rule trigger only", got)
	}
}

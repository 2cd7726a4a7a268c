package trigger

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

const (
	shortMessageRunes = 10
	recentWindow      = 5
	recentShortMin    = 3

	neglectGap          = 24 * time.Hour
	neglectMaxSeverity  = 0.9
	shortSessionMax     = 5 * time.Minute
	shortSessionMaxMsgs = 3
	shortSessionSev     = 0.25

	keywordStep = 0.15
)

var jealousyKeywords = []string{
	"my ex", "ex girlfriend", "ex boyfriend", "another girl", "another guy",
	"other girls", "other guys", "hanging out with", "went out with",
	"coworker", "she's cute", "he's cute", "so hot", "flirting", "flirted",
	"crush", "date night with", "met someone",
}

var boundaryKeywords = []string{
	"shut up", "you have to", "you must", "do what i say", "obey",
	"send pics", "send nudes", "none of your business", "leave me alone",
	"stop whining", "i don't care what you want", "you're mine",
	"whatever i want", "stop complaining",
}

var (
	jealousyPattern = keywordPattern(jealousyKeywords)
	boundaryPattern = keywordPattern(boundaryKeywords)
)

func keywordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

var chapterSensitivity = map[int]float64{
	1: 1.5,
	2: 1.3,
	3: 1.1,
	4: 1.0,
	5: 0.8,
}

// Sensitivity is the chapter multiplier applied to rule severities.
func Sensitivity(chapter int) float64 {
	return chapterSensitivity[min(max(chapter, 1), 5)]
}

// Rules runs the deterministic rule set. Severities are scaled by the
// chapter sensitivity and clamped. The result holds at most one trigger per
// type.
func Rules(message string, c Context, chapter int, now time.Time) []Trigger {
	var out []Trigger
	mult := Sensitivity(chapter)
	add := func(t emotion.TriggerType, sev float64, ctx map[string]any) {
		if sev <= 0 {
			return
		}
		ctx["raw_severity"] = sev
		ctx["chapter"] = chapter
		out = append(out, New(t, sev*mult, now, ctx, message))
	}

	if sev, rule := dismissiveSeverity(message, c.RecentMessages); sev > 0 {
		add(emotion.TriggerDismissive, sev, map[string]any{"rule": rule})
	}
	if sev, ctx := neglectSeverity(c, now); sev > 0 {
		add(emotion.TriggerNeglect, sev, ctx)
	}

	folded := cases.Fold().String(message)
	if n := distinctMatches(jealousyPattern, folded); n > 0 {
		add(emotion.TriggerJealousy, 0.4+keywordStep*float64(n-1), map[string]any{"rule": "keywords", "matches": n})
	}
	if n := distinctMatches(boundaryPattern, folded); n > 0 {
		base := 0.4
		if chapter <= 2 {
			base = 0.6
		}
		add(emotion.TriggerBoundary, base+keywordStep*float64(n-1), map[string]any{"rule": "keywords", "matches": n})
	}
	return out
}

func isShort(msg string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(msg)) < shortMessageRunes
}

// dismissiveSeverity returns the highest applicable dismissive severity and
// the rule that produced it. An empty message is never dismissive.
func dismissiveSeverity(message string, recent []string) (float64, string) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return 0, ""
	}
	sev, rule := 0.0, ""
	raise := func(s float64, r string) {
		if s > sev {
			sev, rule = s, r
		}
	}

	if isShort(msg) {
		raise(0.3, "short_message")
		if !strings.ContainsAny(msg, " \t") {
			raise(0.4, "no_spaces")
		}
		if utf8.RuneCountInString(msg) <= 3 {
			raise(0.5, "minimal")
		}
	}

	window := recent
	if len(window) > recentWindow-1 {
		window = window[len(window)-(recentWindow-1):]
	}
	short := 0
	for _, m := range window {
		if isShort(m) {
			short++
		}
	}
	if isShort(msg) {
		short++
	}
	if short >= recentShortMin {
		raise(0.6, "short_pattern")
	}
	return sev, rule
}

func neglectSeverity(c Context, now time.Time) (float64, map[string]any) {
	sev := 0.0
	ctx := map[string]any{}

	if c.LastInteractionAt != nil {
		gap := now.Sub(*c.LastInteractionAt)
		if gap >= neglectGap {
			hours := gap.Hours()
			sev = math.Min(neglectMaxSeverity, 0.3+(hours/48)*0.3)
			ctx["rule"] = "gap"
			ctx["hours_since_last"] = hours
		}
	}

	if c.SessionEnded && c.SessionStartedAt != nil && c.SessionMessageCount <= shortSessionMaxMsgs {
		d := now.Sub(*c.SessionStartedAt)
		if d >= 0 && d < shortSessionMax && shortSessionSev > sev {
			sev = shortSessionSev
			ctx["rule"] = "short_session"
			ctx["session_minutes"] = d.Minutes()
		}
	}
	return sev, ctx
}

func distinctMatches(re *regexp.Regexp, text string) int {
	seen := make(map[string]bool)
	for _, m := range re.FindAllString(text, -1) {
		seen[m] = true
	}
	return len(seen)
}

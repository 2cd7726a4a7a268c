package conflict

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
)

// Keyword tiers for the fallback classifier, checked harmful first.
var (
	harmfulPhrases = []string{
		"whatever", "get over it", "your fault", "you're crazy", "not my problem",
		"you're overreacting", "deal with it", "you're too sensitive", "calm down",
	}
	excellentPhrases = []string{
		"i was wrong", "i'm so sorry", "i am so sorry", "i hurt you", "you're right",
		"i understand why", "i'll do better", "i promise to", "that was unfair of me",
	}
	goodPhrases = []string{
		"sorry", "apologize", "apologise", "my fault", "i understand",
		"i didn't mean", "forgive me", "i messed up",
	}
	adequatePhrases = []string{
		"my bad", "ok", "okay", "fine", "i guess", "if you say so", "alright",
	}
)

type tier struct {
	quality emotion.Quality
	pattern *regexp.Regexp
}

var tiers = []tier{
	{emotion.QualityHarmful, phrasePattern(harmfulPhrases)},
	{emotion.QualityExcellent, phrasePattern(excellentPhrases)},
	{emotion.QualityGood, phrasePattern(goodPhrases)},
	{emotion.QualityAdequate, phrasePattern(adequatePhrases)},
}

func phrasePattern(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Classify is the rule-based fallback used when no analysis is available.
// Anything that matches no tier is poor.
func Classify(message string) emotion.Quality {
	folded := cases.Fold().String(strings.ReplaceAll(message, "’", "'"))
	for _, t := range tiers {
		if t.pattern.MatchString(folded) {
			return t.quality
		}
	}
	return emotion.QualityPoor
}

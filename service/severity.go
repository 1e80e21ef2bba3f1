package service

import (
	"strings"
	"unicode"
	"video-sentinel/constant"
)

// Terms of four or more letters are stems: they also match any word they prefix.
var (
	humanTerms = []string{
		"child", "kid", "infant", "toddler", "person", "pedestrian", "human", "man", "men", "woman", "women",
		"people", "student", "elderly", "unconscious",
	}
	criticalTerms = []string{
		"medical", "emergenc", "assault", "weapon", "fire", "smoke", "collision", "collid", "crash",
		"hit", "hitting", "injur", "gun", "knife", "knives",
	}
	elevatedTerms = []string{
		"unsafe", "fight", "intrusion", "intrud", "trespass", "theft", "thiev", "vandal",
	}
)

const minStemLength = 4

// ClassifySeverity ranks an event by the vocabulary found in its type and description.
func ClassifySeverity(eventType, description string) constant.Severity {
	words := tokens(eventType + " " + description)

	if matchesAny(words, humanTerms) || matchesAny(words, criticalTerms) {
		return constant.SeverityHigh
	}
	if matchesAny(words, elevatedTerms) {
		return constant.SeverityMedium
	}
	return constant.SeverityLow
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func matchesAny(words []string, terms []string) bool {
	for _, word := range words {
		for _, term := range terms {
			if matchesTerm(word, term) {
				return true
			}
		}
	}
	return false
}

// matchesTerm accepts the term itself, its s/es plural and, for stems, any longer word it starts.
func matchesTerm(word, term string) bool {
	switch word {
	case term, term + "s", term + "es":
		return true
	}
	return len(term) >= minStemLength && strings.HasPrefix(word, term)
}

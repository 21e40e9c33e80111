package parser

import (
	"regexp"
	"strings"
)

var magnitudeRe = regexp.MustCompile(`^\d[\d.,]*[kKmM]$`)

// isStarToken reports whether tok looks like a star count: a magnitude
// suffix ("1.2k") or at least three digits once separators are removed.
func isStarToken(tok string) bool {
	if magnitudeRe.MatchString(tok) {
		return true
	}
	digits := strings.NewReplacer(",", "", ".", "").Replace(tok)
	if len(digits) < 3 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

const tagPunctuation = `/\.:()，。`

var tagStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"and": true, "or": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "with": true, "by": true,
}

// isTagShape reports whether tok is short and free of structural punctuation.
func isTagShape(tok string) bool {
	return RuneLen(tok) < 25 && !strings.ContainsAny(tok, tagPunctuation)
}

const sentencePunctuation = ".,:;()，。"

var descriptionFunctionWords = map[string]bool{
	"and": true, "the": true, "a": true, "an": true, "is": true, "are": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"with": true,
}

// cleanDescription drops short structural words. Punctuated words and
// words of 15+ characters always survive; function words are dropped; other
// words survive when longer than three characters.
func cleanDescription(desc string) string {
	words := strings.Fields(desc)
	kept := words[:0]
	for _, w := range words {
		switch {
		case strings.ContainsAny(w, sentencePunctuation):
			kept = append(kept, w)
		case RuneLen(w) >= 15:
			kept = append(kept, w)
		case descriptionFunctionWords[strings.ToLower(w)]:
		case RuneLen(w) > 3:
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

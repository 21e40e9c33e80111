package translate

import (
	"strings"
	"unicode"
)

// scriptPredicate reports whether a rune belongs to the written script of a
// language.
type scriptPredicate func(r rune) bool

func isHan(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

func isJapanese(r rune) bool {
	return isHan(r) || unicode.In(r, unicode.Hiragana, unicode.Katakana)
}

func isHangul(r rune) bool {
	return unicode.Is(unicode.Hangul, r)
}

func isLatin(r rune) bool {
	return unicode.Is(unicode.Latin, r)
}

// scriptFor maps a language code ("zh-CN", "ja", "ko") to its script.
func scriptFor(lang string) scriptPredicate {
	primary, _, _ := strings.Cut(strings.ToLower(lang), "-")
	switch primary {
	case "zh":
		return isHan
	case "ja":
		return isJapanese
	case "ko":
		return isHangul
	default:
		return isLatin
	}
}

// TargetRatio is the share of target-script characters among all letters,
// digits and target-script characters of text. ok is false when text has
// no such characters at all.
func TargetRatio(text, lang string) (ratio float64, ok bool) {
	inScript := scriptFor(lang)
	var target, total int
	for _, r := range text {
		switch {
		case inScript(r):
			target++
			total++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			total++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(target) / float64(total), true
}

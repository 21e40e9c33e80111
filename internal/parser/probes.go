package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Probe tries to read one optional field from a selection. ok is false when
// the field is absent.
type Probe func(sel *goquery.Selection) (value string, ok bool)

// FirstOf runs probes in order and returns the first hit.
func FirstOf(sel *goquery.Selection, probes ...Probe) string {
	for _, p := range probes {
		if v, ok := p(sel); ok {
			return v
		}
	}
	return ""
}

// SelectorText reads the normalized text of the first element matching
// selector.
func SelectorText(selector string) Probe {
	return func(sel *goquery.Selection) (string, bool) {
		m := sel.Find(selector).First()
		if m.Length() == 0 {
			return "", false
		}
		text := NormalizeSpace(m.Text())
		return text, text != ""
	}
}

// SelectorAttr reads an attribute of the first element matching selector.
func SelectorAttr(selector, attr string) Probe {
	return func(sel *goquery.Selection) (string, bool) {
		v, ok := sel.Find(selector).First().Attr(attr)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
}

// LongText returns the first element under selector whose normalized text is
// longer than minRunes.
func LongText(selector string, minRunes int) Probe {
	return func(sel *goquery.Selection) (string, bool) {
		var found string
		sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := NormalizeSpace(s.Text())
			if utf8.RuneCountInString(text) > minRunes {
				found = text
				return false
			}
			return true
		})
		return found, found != ""
	}
}

// MatchText returns the first submatch of re found in the text of any
// element under selector.
func MatchText(selector string, re *regexp.Regexp) Probe {
	return func(sel *goquery.Selection) (string, bool) {
		var found string
		sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			m := re.FindStringSubmatch(NormalizeSpace(s.Text()))
			if len(m) > 1 && m[1] != "" {
				found = m[1]
				return false
			}
			return true
		})
		return found, found != ""
	}
}

// NormalizeSpace collapses runs of whitespace and trims the result.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

// RuneLen is the length of s in characters.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TextLines returns the trimmed, non-empty text fragments under sel in
// document order. Each text node contributes its own lines, so block
// boundaries inside an anchor become line breaks.
func TextLines(sel *goquery.Selection) []string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			for _, line := range strings.Split(n.Data, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					lines = append(lines, line)
				}
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return lines
}

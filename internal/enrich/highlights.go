package enrich

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/trendscope/internal/parser"
	"github.com/IshaanNene/trendscope/internal/types"
)

// detailPage wraps a parsed detail page.
type detailPage struct {
	doc *goquery.Document
}

// textRule selects candidate snippets. Lengths are exclusive bounds in
// characters; limit caps how many matched elements are inspected (0 = all).
type textRule struct {
	selector string
	limit    int
	min      int
	max      int
}

// collect returns the distinct texts under sel that satisfy rule, in
// document order, up to want entries.
func collect(sel *goquery.Selection, rule textRule, want int, seen map[string]bool) []string {
	var out []string
	matches := sel.Find(rule.selector)
	if rule.limit > 0 {
		matches = matches.Slice(0, min(rule.limit, matches.Length()))
	}
	matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := parser.NormalizeSpace(s.Text())
		n := parser.RuneLen(text)
		if n <= rule.min || n >= rule.max || seen[text] {
			return true
		}
		seen[text] = true
		out = append(out, text)
		return len(out) < want
	})
	return out
}

// firstRuleHit tries rules in order and returns the texts of the first rule
// that yields anything.
func firstRuleHit(sel *goquery.Selection, rules []textRule) []string {
	for _, rule := range rules {
		if got := collect(sel, rule, types.MaxHighlights, make(map[string]bool)); len(got) > 0 {
			return got
		}
	}
	return nil
}

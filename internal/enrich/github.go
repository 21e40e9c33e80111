package enrich

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/trendscope/internal/fetcher"
	"github.com/IshaanNene/trendscope/internal/parser"
	"github.com/IshaanNene/trendscope/internal/types"
)

// GitHubEnricher reads a repository's root page over plain HTTP.
type GitHubEnricher struct {
	fetcher fetcher.Fetcher
	baseURL string
	timeout time.Duration
	gate    parser.Gate
	logger  *slog.Logger
}

// Enrich implements Enricher.
func (e *GitHubEnricher) Enrich(ctx context.Context, p *types.Project) (types.ProjectDetail, error) {
	target := strings.TrimRight(e.baseURL, "/") + "/" + p.RepoID
	page, err := fetchDetail(ctx, e.fetcher, target, e.timeout, 0, types.SourceGitHub)
	if err != nil {
		return types.ProjectDetail{}, err
	}

	d := page.github()
	e.logger.Debug("read repository page",
		"repo", p.RepoID,
		"intro_len", len(d.Intro),
		"highlights", len(d.Highlights),
		"language", d.Language,
	)
	return translateDetail(ctx, e.gate, d), nil
}

var readmeContainers = []string{
	"article.markdown-body",
	"#readme .markdown-body",
	"#readme",
}

const emphasisSelector = "strong, b, h2, h3"

// github reads description, primary language and README highlights.
func (pg *detailPage) github() types.ProjectDetail {
	root := pg.doc.Selection

	intro := parser.FirstOf(root,
		parser.LongText(".BorderGrid-cell p.f4", 20),
		parser.LongText("p.f4.my-3", 20),
		parser.LongText("[itemprop='about']", 20),
		longAttr("meta[property='og:description']", "content", 20),
	)

	language := parser.FirstOf(root,
		parser.SelectorText("div.BorderGrid-cell ul.list-style-none li span.text-bold"),
		parser.SelectorText("[itemprop='programmingLanguage']"),
		searchLinkLanguage,
	)

	return types.ProjectDetail{
		Intro:      parser.Truncate(intro, types.MaxDetailDescription),
		Highlights: pg.readmeHighlights(),
		Language:   language,
	}
}

// readmeHighlights scans the first README container for list items, then
// emphasized text, then falls back to emphasized text anywhere on the page.
func (pg *detailPage) readmeHighlights() []string {
	root := pg.doc.Selection

	for _, selector := range readmeContainers {
		container := root.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		if got := firstRuleHit(container, []textRule{
			{selector: "li", min: 15, max: 200},
			{selector: emphasisSelector, min: 10, max: 100},
		}); len(got) > 0 {
			return got
		}
		break
	}

	return collect(root, textRule{selector: emphasisSelector, min: 10, max: 100},
		types.MaxHighlights, make(map[string]bool))
}

// longAttr reads an attribute longer than minRunes characters.
func longAttr(selector, attr string, minRunes int) parser.Probe {
	return func(sel *goquery.Selection) (string, bool) {
		v, ok := parser.SelectorAttr(selector, attr)(sel)
		v = parser.NormalizeSpace(v)
		return v, ok && parser.RuneLen(v) > minRunes
	}
}

// searchLinkLanguage reads the language from the first language-filtered
// search link, preferring its text over its l= query parameter.
func searchLinkLanguage(sel *goquery.Selection) (string, bool) {
	for _, root := range sel.Nodes {
		a := htmlquery.FindOne(root, "//a[contains(@href,'search?l=')]")
		if a == nil {
			continue
		}
		if text := parser.NormalizeSpace(htmlquery.InnerText(a)); text != "" {
			return text, true
		}
		if u, err := url.Parse(htmlquery.SelectAttr(a, "href")); err == nil {
			if l := u.Query().Get("l"); l != "" {
				return l, true
			}
		}
	}
	return "", false
}

package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/IshaanNene/trendscope/internal/fetcher"
	"github.com/IshaanNene/trendscope/internal/parser"
	"github.com/IshaanNene/trendscope/internal/types"
)

// ListingEnricher reads a client-rendered project page through a browser.
type ListingEnricher struct {
	fetcher fetcher.Fetcher
	timeout time.Duration
	settle  time.Duration
	gate    parser.Gate
	logger  *slog.Logger
}

// Enrich implements Enricher.
func (e *ListingEnricher) Enrich(ctx context.Context, p *types.Project) (types.ProjectDetail, error) {
	page, err := fetchDetail(ctx, e.fetcher, p.URL, e.timeout, e.settle, types.SourceZread)
	if err != nil {
		return types.ProjectDetail{}, err
	}

	d := page.listing()
	e.logger.Debug("read project page",
		"repo", p.RepoID,
		"intro_len", len(d.Intro),
		"highlights", len(d.Highlights),
	)
	return translateDetail(ctx, e.gate, d), nil
}

var listingDescriptionSelectors = []string{
	"main p",
	"article p",
	"[class*='description']",
	"[class*='intro']",
	"[class*='about']",
}

var listingHighlightRules = []textRule{
	{selector: "ul li", limit: 5, min: 20, max: 200},
	{selector: "ol li", limit: 5, min: 20, max: 200},
	{selector: "[class*='feature']", limit: 5, min: 20, max: 200},
	{selector: "[class*='highlight']", limit: 5, min: 20, max: 200},
	{selector: "[class*='benefit']", limit: 5, min: 20, max: 200},
}

// listing reads the first long paragraph and up to five highlight snippets.
func (pg *detailPage) listing() types.ProjectDetail {
	root := pg.doc.Selection

	probes := make([]parser.Probe, len(listingDescriptionSelectors))
	for i, selector := range listingDescriptionSelectors {
		probes[i] = parser.LongText(selector, 50)
	}
	intro := parser.FirstOf(root, probes...)

	highlights := firstRuleHit(root, listingHighlightRules)
	if len(highlights) == 0 {
		highlights = collect(root, textRule{selector: emphasisSelector, limit: 5, min: 10, max: 150},
			types.MaxHighlights, make(map[string]bool))
	}

	return types.ProjectDetail{
		Intro:      parser.Truncate(intro, types.MaxDetailDescription),
		Highlights: highlights,
	}
}

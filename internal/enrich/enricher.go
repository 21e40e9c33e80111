package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/fetcher"
	"github.com/IshaanNene/trendscope/internal/parser"
	"github.com/IshaanNene/trendscope/internal/types"
)

// Enricher reads one project's detail page. Errors are per item; the
// Driver turns them into an empty detail.
type Enricher interface {
	Enrich(ctx context.Context, p *types.Project) (types.ProjectDetail, error)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, p *types.Project) (types.ProjectDetail, error)

// Enrich implements Enricher.
func (f EnricherFunc) Enrich(ctx context.Context, p *types.Project) (types.ProjectDetail, error) {
	return f(ctx, p)
}

// New returns the detail enricher for a source. GitHub detail pages are
// fetched with httpFetcher, zread pages with the rendering browserFetcher.
func New(source types.Source, cfg *config.Config, httpFetcher, browserFetcher fetcher.Fetcher, gate parser.Gate, logger *slog.Logger) (Enricher, error) {
	if gate == nil {
		gate = parser.NopGate{}
	}
	switch source {
	case types.SourceGitHub:
		return &GitHubEnricher{
			fetcher: httpFetcher,
			baseURL: cfg.Sources.GitHub.BaseURL,
			timeout: cfg.Fetcher.DetailTimeout,
			gate:    gate,
			logger:  logger.With("component", "github_enricher"),
		}, nil
	case types.SourceZread:
		return &ListingEnricher{
			fetcher: browserFetcher,
			timeout: cfg.Fetcher.RenderTimeout,
			settle:  cfg.Fetcher.DetailSettle,
			gate:    gate,
			logger:  logger.With("component", "listing_enricher"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSource, source)
	}
}

// fetchDetail retrieves a detail page as a parsed document.
func fetchDetail(ctx context.Context, f fetcher.Fetcher, rawURL string, timeout, settle time.Duration, source types.Source) (*detailPage, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Timeout = timeout
	req.SettleDelay = settle
	req.Tag = types.TagDetail
	req.Source = source

	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: rawURL, Source: source, Err: err}
	}
	return &detailPage{doc: doc}, nil
}

// translateDetail runs the gate over the intro and each highlight.
func translateDetail(ctx context.Context, gate parser.Gate, d types.ProjectDetail) types.ProjectDetail {
	if d.Intro != "" {
		d.Intro = gate.MaybeTranslate(ctx, d.Intro)
	}
	for i, h := range d.Highlights {
		d.Highlights[i] = gate.MaybeTranslate(ctx, h)
	}
	return d
}

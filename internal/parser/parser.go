package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/trendscope/internal/types"
)

// Gate translates text that is not yet in the target language. It never
// fails: on any error the input comes back unchanged.
type Gate interface {
	MaybeTranslate(ctx context.Context, text string) string
}

// NopGate returns text unchanged.
type NopGate struct{}

// MaybeTranslate implements Gate.
func (NopGate) MaybeTranslate(_ context.Context, text string) string { return text }

// Extractor turns a rendered listing page into project summaries. It never
// fails; an unrecognizable page yields an empty slice.
type Extractor interface {
	Extract(ctx context.Context, html string) []types.ProjectSummary
	Source() types.Source
}

// ReadySelector returns the element a rendering fetcher should wait for
// before reading a listing page of source, or "" when the layout has none.
func ReadySelector(source types.Source) string {
	if source == types.SourceGitHub {
		return githubContainer
	}
	return ""
}

// New returns the extractor for a source. baseURL is the site origin used
// to build canonical project URLs.
func New(source types.Source, baseURL string, gate Gate, logger *slog.Logger) (Extractor, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		gate = NopGate{}
	}

	switch source {
	case types.SourceGitHub:
		return &GitHubExtractor{
			base:   base,
			logger: logger.With("component", "github_extractor"),
		}, nil
	case types.SourceZread:
		return &ListingExtractor{
			base:      base,
			navMarker: "/trending",
			blocklist: defaultBlocklist(),
			gate:      gate,
			logger:    logger.With("component", "listing_extractor"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSource, source)
	}
}

func parseBase(baseURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w %q: base URL must be absolute", types.ErrInvalidURL, baseURL)
	}
	return u, nil
}

// parseDocument builds a goquery document, logging instead of failing.
func parseDocument(html string, logger *slog.Logger) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger.Warn("unparseable page", "error", err)
		return nil
	}
	return doc
}

// safely runs fn and swallows a panic from one malformed element so the
// rest of the page is still scanned.
func safely(logger *slog.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("skipping element", "element", what, "panic", r)
		}
	}()
	fn()
}

package parser

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/trendscope/internal/types"
)

// ListingExtractor reads a listing page without reliable containers by
// scanning every relative anchor and classifying the tokens of its text.
type ListingExtractor struct {
	base      *url.URL
	navMarker string
	blocklist map[string]bool
	gate      Gate
	logger    *slog.Logger
}

func defaultBlocklist() map[string]bool {
	return map[string]bool{
		"private/repo": true,
		"subscription": true,
		"library":      true,
	}
}

// Source implements Extractor.
func (e *ListingExtractor) Source() types.Source { return types.SourceZread }

// Extract implements Extractor. The first anchor for a repo id wins.
func (e *ListingExtractor) Extract(ctx context.Context, html string) []types.ProjectSummary {
	doc := parseDocument(html, e.logger)
	if doc == nil {
		return nil
	}

	var out []types.ProjectSummary
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		safely(e.logger, "anchor", func() {
			href := strings.TrimSpace(a.AttrOr("href", ""))
			ref, repoID, ok := e.candidate(href)
			if !ok || seen[repoID] {
				return
			}

			lines := TextLines(a)
			if len(lines) == 0 {
				return
			}

			s := e.classify(lines, strings.TrimSpace(a.AttrOr("title", "")))
			s.RepoID = repoID
			s.URL = ref.String()
			if s.Description != "" {
				s.Description = Truncate(e.gate.MaybeTranslate(ctx, s.Description), types.MaxListingDescription)
			}

			seen[repoID] = true
			out = append(out, s)
		})
	})

	e.logger.Debug("extracted listing", "projects", len(out))
	return out
}

// candidate filters an href down to a project link and derives its repo id
// from the resolved path, so "./a/b" and "/a/b" name the same project.
func (e *ListingExtractor) candidate(href string) (*url.URL, string, bool) {
	if href == "" || href == "/" || strings.Contains(href, e.navMarker) {
		return nil, "", false
	}
	if strings.HasPrefix(href, "http") || strings.HasPrefix(href, "//") {
		return nil, "", false
	}

	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return nil, "", false
	}

	resolved := e.base.ResolveReference(ref)
	parts := strings.Split(strings.Trim(resolved.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, "", false
	}
	repoID := parts[0] + "/" + parts[1]
	if e.blocklist[repoID] || e.blocklist[parts[0]] {
		return nil, "", false
	}
	return resolved, repoID, true
}

// classify splits an anchor's text into description words, tags and a star
// count. Only the first line's words after the owner/name token seed the
// description; later lines contribute tags and any leftover words.
func (e *ListingExtractor) classify(lines []string, title string) types.ProjectSummary {
	var (
		s         types.ProjectSummary
		descWords []string
		tagSet    = make(map[string]bool)
	)

	first := strings.Fields(lines[0])
	for i, tok := range first {
		if strings.Count(tok, "/") != 1 {
			continue
		}
		for _, rest := range first[i+1:] {
			if isStarToken(rest) {
				if s.Stars == "" {
					s.Stars = rest
				}
				continue
			}
			descWords = append(descWords, rest)
		}
		break
	}

	for _, line := range lines[1:] {
		for _, tok := range strings.Fields(line) {
			switch {
			case isStarToken(tok):
				if s.Stars == "" {
					s.Stars = tok
				}
			case isTagShape(tok) && !tagStopWords[strings.ToLower(tok)] && !tagSet[tok]:
				tagSet[tok] = true
				if len(s.Tags) < types.MaxTags {
					s.Tags = append(s.Tags, tok)
				}
			default:
				descWords = append(descWords, tok)
			}
		}
	}

	desc := strings.Join(descWords, " ")
	if desc == "" {
		desc = title
	}
	s.Description = Truncate(cleanDescription(desc), types.MaxListingDescription)
	return s
}

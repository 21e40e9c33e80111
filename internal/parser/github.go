package parser

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/trendscope/internal/types"
)

var starsTodayRe = regexp.MustCompile(`(?i)^([\d,.]+k?)\s+stars?\s+today`)

// GitHubExtractor reads github.com/trending, one article per repository.
type GitHubExtractor struct {
	base   *url.URL
	logger *slog.Logger
}

// Source implements Extractor.
func (e *GitHubExtractor) Source() types.Source { return types.SourceGitHub }

// githubContainer is the repeated element holding one listed project.
const githubContainer = "article.Box-row"

// Extract implements Extractor. Containers whose heading link is not of the
// form /owner/repo are skipped.
func (e *GitHubExtractor) Extract(_ context.Context, html string) []types.ProjectSummary {
	doc := parseDocument(html, e.logger)
	if doc == nil {
		return nil
	}

	containers := doc.Find(githubContainer)
	if containers.Length() == 0 {
		containers = doc.Find("article")
	}

	var out []types.ProjectSummary
	seen := make(map[string]bool)

	containers.Each(func(i int, article *goquery.Selection) {
		safely(e.logger, "article", func() {
			s, ok := e.parseArticle(article)
			if !ok || seen[s.RepoID] {
				return
			}
			seen[s.RepoID] = true
			out = append(out, s)
		})
	})

	e.logger.Debug("extracted github listing", "containers", containers.Length(), "projects", len(out))
	return out
}

func (e *GitHubExtractor) parseArticle(article *goquery.Selection) (types.ProjectSummary, bool) {
	href := FirstOf(article,
		SelectorAttr("h2.h3 a[href]", "href"),
		SelectorAttr("h2 a[href]", "href"),
	)
	repoID, ok := githubRepoID(href)
	if !ok {
		return types.ProjectSummary{}, false
	}

	s := types.ProjectSummary{
		RepoID: repoID,
		URL:    e.base.ResolveReference(&url.URL{Path: "/" + repoID}).String(),
		Description: FirstOf(article,
			SelectorText("p.col-9"),
			SelectorText("p"),
		),
		Language: FirstOf(article,
			SelectorText("span[itemprop='programmingLanguage']"),
		),
		StarsToday: FirstOf(article,
			MatchText("span.d-inline-block", starsTodayRe),
			MatchText("span", starsTodayRe),
		),
	}

	if stars, ok := SelectorText("a[href*='/stargazers']")(article); ok {
		s.Stars = strings.NewReplacer(",", "", " ", "").Replace(stars)
	}
	return s, true
}

// githubRepoID accepts only "/owner/repo" shaped links.
func githubRepoID(href string) (string, bool) {
	if !strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
		return "", false
	}
	id := strings.Trim(href, "/")
	owner, name, found := strings.Cut(id, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return id, true
}

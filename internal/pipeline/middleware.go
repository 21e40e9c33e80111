package pipeline

import (
	"html"
	"regexp"
	"strings"

	"github.com/IshaanNene/trendscope/internal/types"
)

// HTMLSanitizeMiddleware strips tags and entities left in listing text.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(p *types.Project) (*types.Project, error) {
	p.Description = m.clean(p.Description)
	p.Intro = m.clean(p.Intro)
	for i, h := range p.Highlights {
		p.Highlights[i] = m.clean(h)
	}
	for i, tag := range p.Tags {
		p.Tags[i] = m.clean(tag)
	}
	return p, nil
}

func (m *HTMLSanitizeMiddleware) clean(s string) string {
	if s == "" {
		return s
	}
	cleaned := m.stripRe.ReplaceAllString(s, "")
	cleaned = html.UnescapeString(cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// LanguageFilterMiddleware keeps only projects in the listed languages.
// Projects with no known language pass. An empty filter keeps everything.
type LanguageFilterMiddleware struct {
	allowed map[string]bool
}

func NewLanguageFilterMiddleware(languages []string) *LanguageFilterMiddleware {
	allowed := make(map[string]bool, len(languages))
	for _, l := range languages {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			allowed[l] = true
		}
	}
	return &LanguageFilterMiddleware{allowed: allowed}
}

func (m *LanguageFilterMiddleware) Name() string { return "language_filter" }

func (m *LanguageFilterMiddleware) Process(p *types.Project) (*types.Project, error) {
	if len(m.allowed) == 0 || p.Language == "" {
		return p, nil
	}
	if !m.allowed[strings.ToLower(p.Language)] {
		return nil, nil
	}
	return p, nil
}

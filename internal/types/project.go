package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Output caps shared by the extractor and the enrichers.
const (
	MaxTags                  = 15
	MaxHighlights            = 5
	MaxListingDescription    = 300
	MaxDetailDescription     = 500
	DefaultEnrichBatchSize   = 20
	DefaultEnrichConcurrency = 3
)

// Source identifies a trending listing site.
type Source string

const (
	// SourceZread is the generic trending aggregator (zread.ai).
	SourceZread Source = "zread"
	// SourceGitHub is github.com/trending.
	SourceGitHub Source = "github"
)

// AllSources lists every supported source in run order.
var AllSources = []Source{SourceZread, SourceGitHub}

// ParseSource maps a CLI/config value to a Source.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceZread:
		return SourceZread, nil
	case SourceGitHub:
		return SourceGitHub, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
}

// DisplayName is the human-readable name used in reports and notifications.
func (s Source) DisplayName() string {
	switch s {
	case SourceZread:
		return "Zread"
	case SourceGitHub:
		return "GitHub"
	default:
		return string(s)
	}
}

// ProjectSummary is one entry recognized on a listing page.
type ProjectSummary struct {
	// RepoID is the canonical "owner/name" key, unique within one extraction.
	RepoID string `json:"repo" bson:"repo"`

	Description string   `json:"description" bson:"description"`
	Tags        []string `json:"tags,omitempty" bson:"tags,omitempty"`

	// Stars is kept as the raw token ("1.2k", "1234").
	Stars      string `json:"stars,omitempty" bson:"stars,omitempty"`
	StarsToday string `json:"stars_today,omitempty" bson:"stars_today,omitempty"`

	URL      string `json:"url" bson:"url"`
	Language string `json:"language,omitempty" bson:"language,omitempty"`
}

// ProjectDetail is what the detail enricher extracts from a project page.
type ProjectDetail struct {
	Intro      string   `json:"intro"`
	Highlights []string `json:"highlights"`
	Language   string   `json:"language,omitempty"`
}

// Project is a summary merged with its detail. It is the record handed to
// the renderer, the notifiers and the storage backends.
type Project struct {
	ProjectSummary `bson:",inline"`

	Intro      string   `json:"intro,omitempty" bson:"intro,omitempty"`
	Highlights []string `json:"highlights,omitempty" bson:"highlights,omitempty"`

	// Enriched is false when the detail fetch failed or was never attempted.
	Enriched bool `json:"enriched" bson:"enriched"`
}

// NewProject wraps a summary for the pipeline.
func NewProject(s ProjectSummary) *Project {
	return &Project{ProjectSummary: s}
}

// NewProjects wraps every summary, preserving order.
func NewProjects(summaries []ProjectSummary) []*Project {
	projects := make([]*Project, len(summaries))
	for i, s := range summaries {
		projects[i] = NewProject(s)
	}
	return projects
}

// Merge copies a detail into the project. Language only fills an empty slot.
func (p *Project) Merge(d ProjectDetail) {
	p.Intro = d.Intro
	p.Highlights = d.Highlights
	if len(p.Highlights) > MaxHighlights {
		p.Highlights = p.Highlights[:MaxHighlights]
	}
	if p.Language == "" && d.Language != "" {
		p.Language = d.Language
	}
	p.Enriched = true
}

// DisplayIntro returns the intro, falling back to the listing description.
func (p *Project) DisplayIntro() string {
	if p.Intro != "" {
		return p.Intro
	}
	return p.Description
}

// ToFlatMap returns a flat map suitable for CSV export.
func (p *Project) ToFlatMap() map[string]string {
	return map[string]string{
		"repo":        p.RepoID,
		"description": p.Description,
		"intro":       p.Intro,
		"highlights":  strings.Join(p.Highlights, " | "),
		"tags":        strings.Join(p.Tags, ","),
		"stars":       p.Stars,
		"stars_today": p.StarsToday,
		"language":    p.Language,
		"url":         p.URL,
	}
}

// Run is the output of one pipeline pass over one source.
type Run struct {
	Source      Source     `json:"source" bson:"source"`
	GeneratedAt time.Time  `json:"generated_at" bson:"generated_at"`
	Projects    []*Project `json:"projects" bson:"projects"`
}

// NewRun stamps a run with the current time.
func NewRun(source Source, projects []*Project) *Run {
	return &Run{
		Source:      source,
		GeneratedAt: time.Now(),
		Projects:    projects,
	}
}

// Total returns the number of projects in the run.
func (r *Run) Total() int {
	return len(r.Projects)
}

// ToJSON serializes the run.
func (r *Run) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

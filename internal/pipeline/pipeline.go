package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/IshaanNene/trendscope/internal/types"
)

// Middleware processes a project and returns the (possibly modified) project.
// Return nil to drop the project from the run.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a project. Return nil to drop it.
	Process(p *types.Project) (*types.Project, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the chain applied to every extracted listing: trim,
// sanitize, required fields and dedup by repo id.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(&RequiredFieldsMiddleware{})
	p.Use(NewDedupMiddleware())
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the project through all middleware in order.
func (p *Pipeline) Process(project *types.Project) (*types.Project, error) {
	current := project

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  mw.Name(),
				RepoID: current.RepoID,
				Err:    err,
			}
		}
		if result == nil {
			p.logger.Debug("project dropped", "stage", mw.Name(), "repo", project.RepoID)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// ProcessAll runs every project through the chain, keeping order. Projects
// that are dropped or fail are left out; failures are logged and counted.
func (p *Pipeline) ProcessAll(projects []*types.Project) (kept []*types.Project, dropped int) {
	kept = make([]*types.Project, 0, len(projects))
	for _, project := range projects {
		out, err := p.Process(project)
		if err != nil {
			p.logger.Warn("project rejected", "repo", project.RepoID, "error", err)
			dropped++
			continue
		}
		if out == nil {
			dropped++
			continue
		}
		kept = append(kept, out)
	}
	return kept, dropped
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// RequiredFieldsMiddleware drops projects without a repo id or URL.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(p *types.Project) (*types.Project, error) {
	if p.RepoID == "" || p.URL == "" {
		return nil, nil
	}
	return p, nil
}

// DedupMiddleware drops projects whose repo id was already seen.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{seen: make(map[string]struct{})}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(p *types.Project) (*types.Project, error) {
	key := strings.ToLower(p.RepoID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return p, nil
}

// TrimMiddleware trims whitespace from every text field and drops blank tags.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(p *types.Project) (*types.Project, error) {
	p.RepoID = strings.TrimSpace(p.RepoID)
	p.Description = strings.TrimSpace(p.Description)
	p.Stars = strings.TrimSpace(p.Stars)
	p.StarsToday = strings.TrimSpace(p.StarsToday)
	p.URL = strings.TrimSpace(p.URL)
	p.Language = strings.TrimSpace(p.Language)

	tags := p.Tags[:0]
	for _, tag := range p.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		tags = nil
	}
	p.Tags = tags
	return p, nil
}

package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/fetcher"
	"github.com/IshaanNene/trendscope/internal/observability"
	"github.com/IshaanNene/trendscope/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// --- fixtures ---

const repoPageHTML = `<html><head>
<meta property="og:description" content="Contribute to acme/rocket by creating an account on GitHub.">
</head><body>
<div class="BorderGrid-cell">
  <h2>About</h2>
  <p class="f4 my-3">
    A blazing fast rocket launcher written for the modern web.
  </p>
</div>
<div class="BorderGrid-cell">
  <h2>Languages</h2>
  <ul class="list-style-none">
    <li><a href="/acme/rocket/search?l=go"><span class="color-fg-default text-bold mr-1">Go</span><span>92.1%</span></a></li>
    <li><a href="/acme/rocket/search?l=shell"><span class="text-bold">Shell</span><span>7.9%</span></a></li>
  </ul>
</div>
<div id="readme"><article class="markdown-body">
  <h2>Features</h2>
  <ul>
    <li>Zero-config launches in milliseconds</li>
    <li>Short</li>
    <li>Zero-config launches in milliseconds</li>
    <li>Plugin system with hot reload support</li>
    <li>Works on Linux, macOS and Windows</li>
    <li>First-class TypeScript definitions</li>
    <li>Extensive documentation and examples</li>
    <li>Sixth item should be dropped by the cap</li>
  </ul>
</article></div>
</body></html>`

const sparseRepoHTML = `<html><head>
<meta property="og:description" content="Meta description that is long enough">
</head><body>
<a href="/search?l=Zig"></a>
<b>Bold text that qualifies</b>
</body></html>`

const projectPageHTML = `<html><body><main>
  <p>Too short</p>
  <p>Rocket is a launcher that makes starting services effortless on any platform.</p>
  <ul>
    <li>Home</li>
    <li>Launch any service with a single declarative command</li>
    <li>Automatic restarts with exponential backoff</li>
    <li>Docs</li>
    <li>Metrics exported in Prometheus format</li>
    <li>Sixth item beyond the inspection window</li>
  </ul>
</main></body></html>`

func pageFromHTML(t *testing.T, html string) *detailPage {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return &detailPage{doc: doc}
}

type stubFetcher struct {
	pages map[string]string
	calls atomic.Int32
}

func (s *stubFetcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	s.calls.Add(1)
	body, ok := s.pages[req.URLString()]
	if !ok {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	}
	return types.NewBrowserResponse(req, []byte(body), req.URLString(), 0), nil
}

func (s *stubFetcher) Close() error { return nil }
func (s *stubFetcher) Type() string { return "stub" }

type prefixGate struct{}

func (prefixGate) MaybeTranslate(_ context.Context, text string) string { return "T:" + text }

// --- GitHub detail variant ---

func TestGitHubDetailParsing(t *testing.T) {
	d := pageFromHTML(t, repoPageHTML).github()

	if d.Intro != "A blazing fast rocket launcher written for the modern web." {
		t.Errorf("unexpected intro %q", d.Intro)
	}
	if d.Language != "Go" {
		t.Errorf("expected language Go, got %q", d.Language)
	}
	want := []string{
		"Zero-config launches in milliseconds",
		"Plugin system with hot reload support",
		"Works on Linux, macOS and Windows",
		"First-class TypeScript definitions",
		"Extensive documentation and examples",
	}
	if strings.Join(d.Highlights, "|") != strings.Join(want, "|") {
		t.Errorf("unexpected highlights:\n got %q\nwant %q", d.Highlights, want)
	}
}

func TestGitHubDetailFallbacks(t *testing.T) {
	d := pageFromHTML(t, sparseRepoHTML).github()

	if d.Intro != "Meta description that is long enough" {
		t.Errorf("expected og:description fallback, got %q", d.Intro)
	}
	if d.Language != "Zig" {
		t.Errorf("expected language from search link parameter, got %q", d.Language)
	}
	if len(d.Highlights) != 1 || d.Highlights[0] != "Bold text that qualifies" {
		t.Errorf("expected emphasis fallback, got %q", d.Highlights)
	}
}

func TestGitHubEnricherOverHTTP(t *testing.T) {
	var gotPath atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		_, _ = w.Write([]byte(repoPageHTML))
	}))
	defer ts.Close()

	cfg := config.DefaultConfig()
	cfg.Sources.GitHub.BaseURL = ts.URL
	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	defer httpFetcher.Close()

	e, err := New(types.SourceGitHub, cfg, httpFetcher, nil, prefixGate{}, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p := types.NewProject(types.ProjectSummary{RepoID: "acme/rocket"})
	d, err := e.Enrich(context.Background(), p)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if path, _ := gotPath.Load().(string); path != "/acme/rocket" {
		t.Errorf("expected request for /acme/rocket, got %q", path)
	}
	if !strings.HasPrefix(d.Intro, "T:") {
		t.Errorf("expected translated intro, got %q", d.Intro)
	}
	for _, h := range d.Highlights {
		if !strings.HasPrefix(h, "T:") {
			t.Errorf("expected translated highlight, got %q", h)
		}
	}
	if d.Language != "Go" {
		t.Errorf("language should not be translated, got %q", d.Language)
	}
}

// --- Generic listing detail variant ---

func TestListingDetailParsing(t *testing.T) {
	d := pageFromHTML(t, projectPageHTML).listing()

	if d.Intro != "Rocket is a launcher that makes starting services effortless on any platform." {
		t.Errorf("unexpected intro %q", d.Intro)
	}
	want := []string{
		"Launch any service with a single declarative command",
		"Automatic restarts with exponential backoff",
		"Metrics exported in Prometheus format",
	}
	if strings.Join(d.Highlights, "|") != strings.Join(want, "|") {
		t.Errorf("unexpected highlights %q", d.Highlights)
	}
	if d.Language != "" {
		t.Errorf("listing variant should not set language, got %q", d.Language)
	}
}

func TestListingDetailEmphasisFallback(t *testing.T) {
	d := pageFromHTML(t, `<h2>Why Rocket</h2><strong>Fast by default</strong><b>ok</b>`).listing()
	if len(d.Highlights) != 1 || d.Highlights[0] != "Fast by default" {
		t.Errorf("unexpected fallback highlights %q", d.Highlights)
	}
}

func TestListingDetailTruncatesIntro(t *testing.T) {
	d := pageFromHTML(t, "<main><p>"+strings.Repeat("x", 600)+"</p></main>").listing()
	if n := len([]rune(d.Intro)); n != types.MaxDetailDescription {
		t.Errorf("expected intro of %d characters, got %d", types.MaxDetailDescription, n)
	}
}

func TestListingEnricherUsesProjectURL(t *testing.T) {
	stub := &stubFetcher{pages: map[string]string{
		"https://zread.ai/acme/rocket": projectPageHTML,
	}}
	cfg := config.DefaultConfig()
	e, err := New(types.SourceZread, cfg, nil, stub, nil, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p := types.NewProject(types.ProjectSummary{RepoID: "acme/rocket", URL: "https://zread.ai/acme/rocket"})
	d, err := e.Enrich(context.Background(), p)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(d.Highlights) != 3 {
		t.Errorf("expected 3 highlights, got %d", len(d.Highlights))
	}

	missing := types.NewProject(types.ProjectSummary{RepoID: "x/y", URL: "https://zread.ai/x/y"})
	if _, err := e.Enrich(context.Background(), missing); err == nil {
		t.Error("expected fetch error to be returned")
	}
}

// --- Driver ---

func makeProjects(n int) []*types.Project {
	projects := make([]*types.Project, n)
	for i := range projects {
		projects[i] = types.NewProject(types.ProjectSummary{RepoID: fmt.Sprintf("owner/repo%d", i)})
	}
	return projects
}

func TestDriverBoundsConcurrencyAndKeepsOrder(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	var idx atomic.Int32

	e := EnricherFunc(func(ctx context.Context, p *types.Project) (types.ProjectDetail, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		// Stagger latency so completion order differs from submission order.
		i := idx.Add(1)
		time.Sleep(time.Duration(5+(20-i)%7*3) * time.Millisecond)
		return types.ProjectDetail{Intro: "intro of " + p.RepoID}, nil
	})

	projects := makeProjects(20)
	originals := append([]*types.Project(nil), projects...)

	d := NewDriver(e, testLogger, WithPermits(3))
	got := d.Run(context.Background(), projects)

	if m := maxSeen.Load(); m > 3 {
		t.Errorf("observed %d concurrent enrichments, limit is 3", m)
	}
	if m := maxSeen.Load(); m < 2 {
		t.Errorf("expected enrichments to overlap, max in flight was %d", m)
	}
	if len(got) != 20 {
		t.Fatalf("expected 20 projects, got %d", len(got))
	}
	for i, p := range got {
		if p != originals[i] {
			t.Errorf("project %d identity changed", i)
		}
		want := fmt.Sprintf("intro of owner/repo%d", i)
		if p.Intro != want || !p.Enriched {
			t.Errorf("project %d: expected intro %q, got %q (enriched=%v)", i, want, p.Intro, p.Enriched)
		}
	}
}

func TestDriverIsolatesFailures(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			e := EnricherFunc(func(ctx context.Context, p *types.Project) (types.ProjectDetail, error) {
				if p.RepoID == "owner/repo6" {
					if mode == "panic" {
						panic("boom")
					}
					return types.ProjectDetail{}, errors.New("timeout")
				}
				return types.ProjectDetail{
					Intro:      "ok",
					Highlights: []string{"h1"},
				}, nil
			})

			m := observability.NewMetrics(testLogger)
			got := NewDriver(e, testLogger, WithDriverMetrics(m)).Run(context.Background(), makeProjects(20))

			if len(got) != 20 {
				t.Fatalf("expected 20 projects, got %d", len(got))
			}
			for i, p := range got {
				if i == 6 {
					if p.Enriched || p.Intro != "" || len(p.Highlights) != 0 {
						t.Errorf("failed item should keep empty detail, got %+v", p)
					}
					continue
				}
				if !p.Enriched || p.Intro != "ok" {
					t.Errorf("project %d not enriched: %+v", i, p)
				}
			}
			if m.DetailFailures.Load() != 1 {
				t.Errorf("expected 1 failure, got %d", m.DetailFailures.Load())
			}
			if m.EnrichInFlight.Load() != 0 {
				t.Errorf("in-flight gauge should return to 0, got %d", m.EnrichInFlight.Load())
			}
		})
	}
}

func TestDriverBatchSizeAndProgress(t *testing.T) {
	var calls atomic.Int32
	e := EnricherFunc(func(ctx context.Context, p *types.Project) (types.ProjectDetail, error) {
		calls.Add(1)
		return types.ProjectDetail{Intro: "x"}, nil
	})

	var mu sync.Mutex
	var seenDone []int
	progress := func(done, total int, p *types.Project, err error) {
		mu.Lock()
		defer mu.Unlock()
		if total != 20 {
			t.Errorf("expected total 20, got %d", total)
		}
		seenDone = append(seenDone, done)
	}

	projects := makeProjects(25)
	got := NewDriver(e, testLogger, WithProgress(progress)).Run(context.Background(), projects)

	if len(got) != 25 {
		t.Fatalf("all projects should be returned, got %d", len(got))
	}
	if calls.Load() != 20 {
		t.Errorf("expected 20 enrichments, got %d", calls.Load())
	}
	for i := 20; i < 25; i++ {
		if got[i].Enriched {
			t.Errorf("project %d beyond the batch should not be enriched", i)
		}
	}
	if len(seenDone) != 20 {
		t.Errorf("expected 20 progress callbacks, got %d", len(seenDone))
	}
}

func TestDriverEmptyInput(t *testing.T) {
	e := EnricherFunc(func(ctx context.Context, p *types.Project) (types.ProjectDetail, error) {
		t.Error("enricher should not be called")
		return types.ProjectDetail{}, nil
	})
	if got := NewDriver(e, testLogger).Run(context.Background(), nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestMergeKeepsListingLanguage(t *testing.T) {
	p := types.NewProject(types.ProjectSummary{RepoID: "a/b", Language: "Go"})
	p.Merge(types.ProjectDetail{Language: "Rust", Highlights: []string{"1", "2", "3", "4", "5", "6"}})
	if p.Language != "Go" {
		t.Errorf("detail language must not overwrite listing language, got %q", p.Language)
	}
	if len(p.Highlights) != types.MaxHighlights {
		t.Errorf("expected highlights capped at %d, got %d", types.MaxHighlights, len(p.Highlights))
	}

	q := types.NewProject(types.ProjectSummary{RepoID: "c/d"})
	q.Merge(types.ProjectDetail{Language: "Rust"})
	if q.Language != "Rust" {
		t.Errorf("expected empty language to be filled, got %q", q.Language)
	}
}

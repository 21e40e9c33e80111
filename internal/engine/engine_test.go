package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/notify"
	"github.com/IshaanNene/trendscope/internal/observability"
	"github.com/IshaanNene/trendscope/internal/parser"
	"github.com/IshaanNene/trendscope/internal/report"
	"github.com/IshaanNene/trendscope/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const trendingHTML = `<!DOCTYPE html>
<html><body><main>
<article class="Box-row">
  <h2 class="h3 lh-condensed"><a href="/golang/go"><span>golang /</span> go</a></h2>
  <p class="col-9 color-fg-muted my-1 pr-4">The Go programming language</p>
  <div class="f6 color-fg-muted mt-2">
    <span class="d-inline-block ml-0 mr-3"><span itemprop="programmingLanguage">Go</span></span>
    <a class="Link--muted d-inline-block mr-3" href="/golang/go/stargazers"> 125,432 </a>
    <span class="d-inline-block float-sm-right">89 stars today</span>
  </div>
</article>
<article class="Box-row">
  <h2 class="h3 lh-condensed"><a href="/rust-lang/rust">rust-lang / rust</a></h2>
  <p class="col-9">Empowering everyone to build reliable and efficient software.</p>
  <div class="f6">
    <span class="d-inline-block"><span itemprop="programmingLanguage">Rust</span></span>
    <a href="/rust-lang/rust/stargazers">98,001</a>
    <span class="d-inline-block float-sm-right">1,024 stars today</span>
  </div>
</article>
</main></body></html>`

func repoPage(intro string) string {
	return `<html><body>
<div class="BorderGrid-cell"><h2>About</h2><p class="f4 my-3">` + intro + `</p></div>
<div id="readme"><article class="markdown-body"><ul>
  <li>Fast compilation and a small runtime</li>
  <li>Batteries included standard library</li>
</ul></article></div>
</body></html>`
}

// fakeFetcher serves pages from memory, keyed by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
	waits map[string]string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int), waits: make(map[string]string)}
}

func (f *fakeFetcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URLString()]++
	f.waits[req.URLString()] = req.WaitSelector
	html, ok := f.pages[req.URLString()]
	if !ok {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	}
	return types.NewBrowserResponse(req, []byte(html), req.URLString(), time.Millisecond), nil
}

func (f *fakeFetcher) Close() error { return nil }
func (f *fakeFetcher) Type() string { return "fake" }

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []notify.Summary
}

func (n *recordingNotifier) Name() string { return "recorder" }

func (n *recordingNotifier) SendReportSummary(_ context.Context, s notify.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

func (n *recordingNotifier) SendTest(context.Context) error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Report.OutputDir = t.TempDir()
	cfg.Storage.Type = "json"
	cfg.Storage.OutputPath = t.TempDir()
	cfg.Translate.Backend = "none"
	return cfg
}

type harness struct {
	runner   *Runner
	fetcher  *fakeFetcher
	notifier *recordingNotifier
	metrics  *observability.Metrics
}

func newHarness(t *testing.T, cfg *config.Config, pages map[string]string) *harness {
	t.Helper()
	h := &harness{
		fetcher:  newFakeFetcher(pages),
		notifier: &recordingNotifier{},
		metrics:  observability.NewMetrics(testLogger),
	}
	r, err := NewRunner(cfg, testLogger,
		WithBrowserFetcher(h.fetcher),
		WithHTTPFetcher(h.fetcher),
		WithGate(parser.NopGate{}),
		WithMetrics(h.metrics),
		WithDispatcher(notify.NewDispatcherWith([]notify.Notifier{h.notifier}, h.metrics, testLogger)),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	h.runner = r
	return h
}

func githubPages() map[string]string {
	return map[string]string{
		"https://github.com/trending":       trendingHTML,
		"https://github.com/golang/go":      repoPage("The Go programming language and its toolchain."),
		"https://github.com/rust-lang/rust": repoPage("Empowering everyone to build reliable software."),
	}
}

// --- Runner ---

func TestRunGitHub(t *testing.T) {
	cfg := testConfig(t)
	h := newHarness(t, cfg, githubPages())

	res, err := h.runner.Run(context.Background(), types.SourceGitHub)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	h.fetcher.mu.Lock()
	wait := h.fetcher.waits["https://github.com/trending"]
	h.fetcher.mu.Unlock()
	if wait != "article.Box-row" {
		t.Errorf("expected listing fetch to wait for article.Box-row, got %q", wait)
	}

	if res.Run.Total() != 2 || res.Enriched != 2 {
		t.Fatalf("expected 2 enriched projects, got total=%d enriched=%d", res.Run.Total(), res.Enriched)
	}
	first := res.Run.Projects[0]
	if first.RepoID != "golang/go" || first.Intro != "The Go programming language and its toolchain." {
		t.Errorf("unexpected first project %+v", first)
	}
	if first.Language != "Go" || first.StarsToday == "" {
		t.Errorf("listing fields lost: %+v", first.ProjectSummary)
	}
	if len(first.Highlights) != 2 {
		t.Errorf("expected 2 highlights, got %v", first.Highlights)
	}

	if len(res.Outputs) != 2 {
		t.Fatalf("expected 2 report files, got %d", len(res.Outputs))
	}
	for _, o := range res.Outputs {
		if _, err := os.Stat(o.Path); err != nil {
			t.Errorf("report %s missing: %v", o.Path, err)
		}
	}

	archived, _ := filepath.Glob(filepath.Join(cfg.Storage.OutputPath, "github_trending_*.json"))
	if len(archived) != 1 {
		t.Errorf("expected 1 archived run, got %v", archived)
	}

	if len(h.notifier.summaries) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(h.notifier.summaries))
	}
	s := h.notifier.summaries[0]
	md, _ := report.Find(res.Outputs, report.FormatMarkdown)
	if s.Total != 2 || s.ReportPath != md.Path || s.Source != types.SourceGitHub {
		t.Errorf("unexpected summary %+v", s)
	}
	if res.Notified != 1 {
		t.Errorf("expected 1 notifier to succeed, got %d", res.Notified)
	}

	snap := h.metrics.Snapshot()
	for name, want := range map[string]int64{
		"trendscope_runs_total":               1,
		"trendscope_runs_failed_total":        0,
		"trendscope_listing_fetches_total":    1,
		"trendscope_projects_extracted_total": 2,
		"trendscope_reports_written_total":    2,
		"trendscope_runs_stored_total":        1,
		"trendscope_notifications_sent_total": 1,
	} {
		if snap[name] != want {
			t.Errorf("metric %s = %d, want %d", name, snap[name], want)
		}
	}
	if h.metrics.LastRunUnix.Load() == 0 {
		t.Error("last run time not recorded")
	}
}

func TestRunDetailFailureIsolated(t *testing.T) {
	pages := githubPages()
	delete(pages, "https://github.com/rust-lang/rust")
	h := newHarness(t, testConfig(t), pages)

	res, err := h.runner.Run(context.Background(), types.SourceGitHub)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Total() != 2 || res.Enriched != 1 {
		t.Fatalf("expected 2 projects with 1 enriched, got total=%d enriched=%d", res.Run.Total(), res.Enriched)
	}
	rust := res.Run.Projects[1]
	if rust.Enriched || rust.Intro != "" {
		t.Errorf("failed project should keep an empty detail: %+v", rust)
	}
	if rust.DisplayIntro() != "Empowering everyone to build reliable and efficient software." {
		t.Errorf("expected listing description fallback, got %q", rust.DisplayIntro())
	}
}

func TestRunNoProjectsSavesRawPage(t *testing.T) {
	cfg := testConfig(t)
	empty := "<html><body><p>Nothing trending</p></body></html>"
	h := newHarness(t, cfg, map[string]string{"https://github.com/trending": empty})

	_, err := h.runner.Run(context.Background(), types.SourceGitHub)
	if !errors.Is(err, types.ErrNoProjects) {
		t.Fatalf("expected ErrNoProjects, got %v", err)
	}

	raw, readErr := os.ReadFile(filepath.Join(cfg.Report.OutputDir, "github_trending_raw.html"))
	if readErr != nil {
		t.Fatalf("raw page not saved: %v", readErr)
	}
	if !strings.Contains(string(raw), "Nothing trending") {
		t.Error("raw page content mismatch")
	}
	if h.metrics.RunsFailed.Load() != 1 {
		t.Errorf("expected 1 failed run, got %d", h.metrics.RunsFailed.Load())
	}
	if len(h.notifier.summaries) != 0 {
		t.Error("a failed run must not notify")
	}
}

func TestRunListingFetchFails(t *testing.T) {
	h := newHarness(t, testConfig(t), map[string]string{})

	_, err := h.runner.Run(context.Background(), types.SourceGitHub)
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected wrapped FetchError, got %v", err)
	}
	if h.metrics.ListingFailures.Load() != 1 {
		t.Errorf("expected 1 listing failure, got %d", h.metrics.ListingFailures.Load())
	}
}

func TestRunLanguageFilter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.GitHub.Languages = []string{"rust"}
	h := newHarness(t, cfg, githubPages())

	res, err := h.runner.Run(context.Background(), types.SourceGitHub)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Total() != 1 || res.Dropped != 1 || res.Run.Projects[0].RepoID != "rust-lang/rust" {
		t.Errorf("expected only rust-lang/rust, got total=%d dropped=%d", res.Run.Total(), res.Dropped)
	}
	if h.fetcher.count("https://github.com/golang/go") != 0 {
		t.Error("filtered project should not be enriched")
	}
}

func TestRunEnrichDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enrich.Enabled = false
	h := newHarness(t, cfg, githubPages())

	res, err := h.runner.Run(context.Background(), types.SourceGitHub)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Enriched != 0 || h.fetcher.count("https://github.com/golang/go") != 0 {
		t.Error("no detail page should be fetched when enrichment is off")
	}
	if res.Run.Total() != 2 {
		t.Errorf("expected 2 projects, got %d", res.Run.Total())
	}
}

func TestRunUnknownSource(t *testing.T) {
	h := newHarness(t, testConfig(t), githubPages())
	if _, err := h.runner.Run(context.Background(), types.Source("gitlab")); !errors.Is(err, types.ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestRunAllIsolatesSources(t *testing.T) {
	h := newHarness(t, testConfig(t), githubPages())

	results, err := h.runner.RunAll(context.Background(), []types.Source{types.SourceZread, types.SourceGitHub})
	if err == nil {
		t.Fatal("expected the zread failure to be reported")
	}
	var fe *types.FetchError
	if !errors.As(err, &fe) || !strings.Contains(fe.URL, "zread.ai") {
		t.Errorf("expected zread FetchError, got %v", err)
	}
	if results[0] != nil {
		t.Error("failed source should have a nil result")
	}
	if results[1] == nil || results[1].Run.Total() != 2 {
		t.Error("github run should succeed despite the zread failure")
	}
	if h.metrics.RunsTotal.Load() != 2 || h.metrics.RunsFailed.Load() != 1 {
		t.Errorf("unexpected run counters %d/%d", h.metrics.RunsTotal.Load(), h.metrics.RunsFailed.Load())
	}
}

func TestRunAllEmpty(t *testing.T) {
	h := newHarness(t, testConfig(t), nil)
	results, err := h.runner.RunAll(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("expected no results and no error, got %v %v", results, err)
	}
}

func TestRunProgressCallback(t *testing.T) {
	cfg := testConfig(t)
	var calls atomic.Int32
	fetch := newFakeFetcher(githubPages())
	r, err := NewRunner(cfg, testLogger,
		WithBrowserFetcher(fetch),
		WithHTTPFetcher(fetch),
		WithGate(parser.NopGate{}),
		WithDispatcher(notify.NewDispatcherWith(nil, nil, testLogger)),
		WithProgress(func(done, total int, p *types.Project, err error) {
			calls.Add(1)
			if total != 2 {
				t.Errorf("expected total 2, got %d", total)
			}
		}),
	)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer r.Close()

	if _, err := r.Run(context.Background(), types.SourceGitHub); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 progress calls, got %d", calls.Load())
	}
}

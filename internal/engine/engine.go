package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/enrich"
	"github.com/IshaanNene/trendscope/internal/fetcher"
	"github.com/IshaanNene/trendscope/internal/notify"
	"github.com/IshaanNene/trendscope/internal/observability"
	"github.com/IshaanNene/trendscope/internal/parser"
	"github.com/IshaanNene/trendscope/internal/pipeline"
	"github.com/IshaanNene/trendscope/internal/report"
	"github.com/IshaanNene/trendscope/internal/storage"
	"github.com/IshaanNene/trendscope/internal/translate"
	"github.com/IshaanNene/trendscope/internal/types"
)

// Result describes one finished run.
type Result struct {
	Run      *types.Run
	Outputs  []report.Output
	Dropped  int
	Enriched int
	Notified int
	Duration time.Duration
}

// closer is anything the Runner built itself and must release.
type closer interface {
	Close() error
}

// Runner executes one pass per source: fetch the listing, extract, filter,
// enrich, render, archive and notify.
type Runner struct {
	cfg     *config.Config
	metrics *observability.Metrics
	logger  *slog.Logger

	httpFetcher fetcher.Fetcher
	gate        parser.Gate
	renderer    *report.Renderer
	store       storage.Storage
	dispatcher  *notify.Dispatcher
	progress    enrich.ProgressFunc

	// The rendering fetcher starts Chromium, so it is built on first use.
	browserMu  sync.Mutex
	browser    fetcher.Fetcher
	newBrowser func() (fetcher.Fetcher, error)

	owned []closer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBrowserFetcher sets the rendering fetcher used for listing pages and
// generic detail pages.
func WithBrowserFetcher(f fetcher.Fetcher) RunnerOption {
	return func(r *Runner) { r.browser = f }
}

// WithHTTPFetcher sets the plain fetcher used for GitHub detail pages.
func WithHTTPFetcher(f fetcher.Fetcher) RunnerOption {
	return func(r *Runner) { r.httpFetcher = f }
}

// WithGate sets the translation gate.
func WithGate(g parser.Gate) RunnerOption {
	return func(r *Runner) { r.gate = g }
}

// WithStorage sets the run archive.
func WithStorage(s storage.Storage) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// WithDispatcher sets the notification fan-out.
func WithDispatcher(d *notify.Dispatcher) RunnerOption {
	return func(r *Runner) { r.dispatcher = d }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithProgress replaces the default per-item progress log.
func WithProgress(fn enrich.ProgressFunc) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// NewRunner builds every collaborator that was not supplied as an option.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		cfg:    cfg,
		logger: logger.With("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observability.NewMetrics(logger)
	}

	if r.httpFetcher == nil {
		f, err := fetcher.NewHTTPFetcher(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create http fetcher: %w", err)
		}
		r.httpFetcher = f
		r.owned = append(r.owned, f)
	}

	if r.browser == nil {
		r.newBrowser = func() (fetcher.Fetcher, error) {
			var bopts []fetcher.BrowserOption
			if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
				bopts = append(bopts, fetcher.WithBrowserProxy(fetcher.NewProxyManager(&cfg.Proxy, logger)))
			}
			return fetcher.NewBrowserFetcher(cfg, logger, bopts...)
		}
	}

	if r.gate == nil {
		g, err := translate.FromConfig(&cfg.Translate, logger, r.metrics)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create translation gate: %w", err)
		}
		r.gate = g
		r.owned = append(r.owned, g)
	}

	renderer, err := report.New(&cfg.Report, logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.renderer = renderer

	if r.store == nil {
		s, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create storage: %w", err)
		}
		r.store = s
		r.owned = append(r.owned, s)
	}

	if r.dispatcher == nil {
		r.dispatcher = notify.NewDispatcher(&cfg.Notification, r.metrics, logger)
	}
	return r, nil
}

// Metrics returns the counters the runner updates.
func (r *Runner) Metrics() *observability.Metrics {
	return r.metrics
}

// Close releases the fetchers, the gate and the storage the runner built.
func (r *Runner) Close() error {
	var errs []error
	r.browserMu.Lock()
	if r.browser != nil && r.newBrowser != nil {
		errs = append(errs, r.browser.Close())
		r.browser = nil
	}
	r.browserMu.Unlock()

	for i := len(r.owned) - 1; i >= 0; i-- {
		errs = append(errs, r.owned[i].Close())
	}
	r.owned = nil
	return errors.Join(errs...)
}

func (r *Runner) browserFetcher() (fetcher.Fetcher, error) {
	r.browserMu.Lock()
	defer r.browserMu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}
	f, err := r.newBrowser()
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	r.browser = f
	return f, nil
}

// Run performs one full pass over source. It fails when the listing cannot
// be fetched, when no project is recognized, or when no report can be
// written; archive and notification failures are only logged.
func (r *Runner) Run(ctx context.Context, source types.Source) (res *Result, err error) {
	start := time.Now()
	logger := r.logger.With("source", source)
	r.metrics.RunsTotal.Add(1)
	defer func() {
		if err != nil {
			r.metrics.RunsFailed.Add(1)
			logger.Error("run failed", "error", err, "duration", time.Since(start))
		}
	}()

	src, ok := r.cfg.Source(string(source))
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownSource, source)
	}

	browser, err := r.browserFetcher()
	if err != nil {
		return nil, err
	}

	logger.Info("fetching listing", "url", src.URL)
	html, err := r.fetchListing(ctx, browser, source, src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s listing: %w", source, err)
	}

	extractor, err := parser.New(source, src.BaseURL, r.gate, r.logger)
	if err != nil {
		return nil, err
	}
	summaries := extractor.Extract(ctx, html)
	r.metrics.ProjectsExtracted.Add(int64(len(summaries)))
	if len(summaries) == 0 {
		path, derr := r.dumpRaw(source, html)
		if derr != nil {
			logger.Warn("could not save raw listing", "error", derr)
		}
		return nil, fmt.Errorf("%s: %w (raw page: %s)", source, types.ErrNoProjects, path)
	}
	logger.Info("listing extracted", "projects", len(summaries))

	pl := pipeline.Default(r.logger)
	if len(src.Languages) > 0 {
		pl.Use(pipeline.NewLanguageFilterMiddleware(src.Languages))
	}
	projects, dropped := pl.ProcessAll(types.NewProjects(summaries))
	r.metrics.ProjectsDropped.Add(int64(dropped))

	enriched := 0
	if r.cfg.Enrich.Enabled && len(projects) > 0 {
		enriched, err = r.enrich(ctx, source, projects, browser)
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := types.NewRun(source, projects)
	outputs, err := r.renderer.Render(run)
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", source, err)
	}
	r.metrics.ReportsWritten.Add(int64(len(outputs)))
	for _, o := range outputs {
		logger.Info("report written", "format", o.Format, "path", o.Path)
	}

	if err := r.store.Store(ctx, run); err != nil {
		logger.Error("archive failed", "backend", r.store.Name(), "error", err)
	} else if r.store.Name() != "none" {
		r.metrics.RunsStored.Add(1)
	}

	notified := r.dispatcher.Notify(ctx, notify.SummaryFromRun(run, outputs))
	r.metrics.LastRunUnix.Store(time.Now().Unix())

	res = &Result{
		Run:      run,
		Outputs:  outputs,
		Dropped:  dropped,
		Enriched: enriched,
		Notified: notified,
		Duration: time.Since(start),
	}
	logger.Info("run complete",
		"projects", run.Total(),
		"enriched", enriched,
		"dropped", dropped,
		"notified", notified,
		"duration", res.Duration,
	)
	return res, nil
}

// RunAll runs sources concurrently. A failing source never stops the others;
// the error joins every failure and results[i] is nil for a failed source.
func (r *Runner) RunAll(ctx context.Context, sources []types.Source) ([]*Result, error) {
	results := make([]*Result, len(sources))
	if len(sources) == 0 {
		return results, nil
	}

	p := pool.New().WithMaxGoroutines(len(sources)).WithErrors()
	for i, source := range sources {
		p.Go(func() error {
			res, err := r.Run(ctx, source)
			results[i] = res
			return err
		})
	}
	return results, p.Wait()
}

func (r *Runner) fetchListing(ctx context.Context, f fetcher.Fetcher, source types.Source, src config.SourceConfig) (string, error) {
	req, err := types.NewRequest(src.URL)
	if err != nil {
		return "", err
	}
	req.Timeout = r.cfg.Fetcher.PageTimeout
	req.SettleDelay = src.SettleDelay
	req.WaitSelector = parser.ReadySelector(source)
	req.Tag = types.TagListing
	req.Source = source

	r.metrics.ListingFetches.Add(1)
	html, err := fetcher.FetchHTML(ctx, f, req)
	if err != nil {
		r.metrics.ListingFailures.Add(1)
		return "", err
	}
	r.metrics.BytesDownloaded.Add(int64(len(html)))
	return html, nil
}

func (r *Runner) enrich(ctx context.Context, source types.Source, projects []*types.Project, browser fetcher.Fetcher) (int, error) {
	enricher, err := enrich.New(source, r.cfg, r.httpFetcher, browser, r.gate, r.logger)
	if err != nil {
		return 0, err
	}

	progress := r.progress
	if progress == nil {
		progress = r.logProgress(source)
	}
	driver := enrich.NewDriver(enricher, r.logger,
		enrich.WithPermits(r.cfg.Enrich.Concurrency),
		enrich.WithBatchSize(r.cfg.Enrich.BatchSize),
		enrich.WithDriverMetrics(r.metrics),
		enrich.WithProgress(progress),
	)
	driver.Run(ctx, projects)

	n := 0
	for _, p := range projects {
		if p.Enriched {
			n++
		}
	}
	return n, nil
}

func (r *Runner) logProgress(source types.Source) enrich.ProgressFunc {
	logger := r.logger.With("source", source)
	return func(done, total int, p *types.Project, err error) {
		step := fmt.Sprintf("%d/%d", done, total)
		if err != nil {
			logger.Warn("✗ detail failed", "progress", step, "repo", p.RepoID, "error", err)
			return
		}
		logger.Info("✓ detail enriched", "progress", step, "repo", p.RepoID)
	}
}

// dumpRaw keeps an unrecognizable listing page for inspection.
func (r *Runner) dumpRaw(source types.Source, html string) (string, error) {
	dir := r.cfg.Report.OutputDir
	path := filepath.Join(dir, string(source)+"_trending_raw.html")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, err
	}
	return path, os.WriteFile(path, []byte(html), 0o644)
}

package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/IshaanNene/trendscope/internal/observability"
	"github.com/IshaanNene/trendscope/internal/types"
)

// ProgressFunc is called after each project finishes, successfully or not.
// It may be called from several goroutines at once.
type ProgressFunc func(done, total int, p *types.Project, err error)

// Driver enriches a batch of projects concurrently behind a fixed number of
// permits. One project failing never affects the others.
type Driver struct {
	enricher   Enricher
	permits    int64
	batchSize  int
	metrics    *observability.Metrics
	onProgress ProgressFunc
	logger     *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithPermits sets how many enrichments may run at once.
func WithPermits(n int) DriverOption {
	return func(d *Driver) { d.permits = int64(n) }
}

// WithBatchSize sets how many leading projects are enriched.
func WithBatchSize(n int) DriverOption {
	return func(d *Driver) { d.batchSize = n }
}

// WithDriverMetrics sets the metrics sink.
func WithDriverMetrics(m *observability.Metrics) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// WithProgress registers a completion callback.
func WithProgress(fn ProgressFunc) DriverOption {
	return func(d *Driver) { d.onProgress = fn }
}

// NewDriver creates a Driver with 3 permits and a batch of 20.
func NewDriver(e Enricher, logger *slog.Logger, opts ...DriverOption) *Driver {
	d := &Driver{
		enricher:  e,
		permits:   types.DefaultEnrichConcurrency,
		batchSize: types.DefaultEnrichBatchSize,
		logger:    logger.With("component", "enrich_driver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.permits < 1 {
		d.permits = 1
	}
	if d.metrics == nil {
		d.metrics = observability.NewMetrics(logger)
	}
	return d
}

// Run enriches the first batchSize projects in place and returns the same
// slice. Order and identity are preserved; projects that fail keep an empty
// detail. Run returns early only if ctx is cancelled, in which case the
// projects not yet started stay unenriched.
func (d *Driver) Run(ctx context.Context, projects []*types.Project) []*types.Project {
	batch := projects
	if d.batchSize > 0 && len(batch) > d.batchSize {
		batch = batch[:d.batchSize]
	}
	total := len(batch)
	if total == 0 {
		return projects
	}

	sem := semaphore.NewWeighted(d.permits)
	var done, failed atomic.Int32

	d.logger.Info("enriching projects", "count", total, "permits", d.permits)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range batch {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil // cancelled while queued
			}
			err := d.enrichOne(gctx, p)
			sem.Release(1)

			if err != nil {
				failed.Add(1)
				d.metrics.DetailFailures.Add(1)
				d.logger.Warn("enrichment failed", "repo", p.RepoID, "error", err)
			}
			n := int(done.Add(1))
			if d.onProgress != nil {
				d.onProgress(n, total, p, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("enrichment finished",
		"count", total,
		"failed", failed.Load(),
	)
	return projects
}

// enrichOne runs the enricher for one project and merges the result. A
// panic inside the enricher is reported as an error.
func (d *Driver) enrichOne(ctx context.Context, p *types.Project) (err error) {
	d.metrics.DetailFetches.Add(1)
	d.metrics.EnrichInFlight.Add(1)
	defer d.metrics.EnrichInFlight.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enricher panic: %v", r)
		}
	}()

	detail, err := d.enricher.Enrich(ctx, p)
	if err != nil {
		return err
	}
	p.Merge(detail)
	return nil
}

package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for the trending pipeline.
type Metrics struct {
	// Run metrics
	RunsTotal   atomic.Int64
	RunsFailed  atomic.Int64
	LastRunUnix atomic.Int64

	// Listing metrics
	ListingFetches    atomic.Int64
	ListingFailures   atomic.Int64
	ProjectsExtracted atomic.Int64
	ProjectsDropped   atomic.Int64
	BytesDownloaded   atomic.Int64

	// Enrichment metrics
	DetailFetches  atomic.Int64
	DetailFailures atomic.Int64
	EnrichInFlight atomic.Int32

	// Translation metrics
	TranslationsRequested atomic.Int64
	TranslationsSkipped   atomic.Int64
	TranslationsFailed    atomic.Int64
	TranslationCacheHits  atomic.Int64

	// Output metrics
	ReportsWritten      atomic.Int64
	RunsStored          atomic.Int64
	NotificationsSent   atomic.Int64
	NotificationsFailed atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metricLine struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) lines() []metricLine {
	return []metricLine{
		{"trendscope_runs_total", "Total pipeline runs", "counter", m.RunsTotal.Load()},
		{"trendscope_runs_failed_total", "Total failed pipeline runs", "counter", m.RunsFailed.Load()},
		{"trendscope_last_run_timestamp_seconds", "Unix time of the last finished run", "gauge", m.LastRunUnix.Load()},
		{"trendscope_listing_fetches_total", "Total listing page fetches", "counter", m.ListingFetches.Load()},
		{"trendscope_listing_failures_total", "Total failed listing fetches", "counter", m.ListingFailures.Load()},
		{"trendscope_projects_extracted_total", "Total projects extracted from listings", "counter", m.ProjectsExtracted.Load()},
		{"trendscope_projects_dropped_total", "Total projects dropped by the pipeline", "counter", m.ProjectsDropped.Load()},
		{"trendscope_bytes_downloaded_total", "Total listing bytes downloaded", "counter", m.BytesDownloaded.Load()},
		{"trendscope_detail_fetches_total", "Total detail page fetches", "counter", m.DetailFetches.Load()},
		{"trendscope_detail_failures_total", "Total failed detail enrichments", "counter", m.DetailFailures.Load()},
		{"trendscope_enrich_in_flight", "Detail enrichments currently running", "gauge", int64(m.EnrichInFlight.Load())},
		{"trendscope_translations_requested_total", "Total translation backend calls", "counter", m.TranslationsRequested.Load()},
		{"trendscope_translations_skipped_total", "Total texts already in the target language", "counter", m.TranslationsSkipped.Load()},
		{"trendscope_translations_failed_total", "Total failed translations", "counter", m.TranslationsFailed.Load()},
		{"trendscope_translation_cache_hits_total", "Total translation cache hits", "counter", m.TranslationCacheHits.Load()},
		{"trendscope_reports_written_total", "Total report files written", "counter", m.ReportsWritten.Load()},
		{"trendscope_runs_stored_total", "Total runs archived", "counter", m.RunsStored.Load()},
		{"trendscope_notifications_sent_total", "Total notifications delivered", "counter", m.NotificationsSent.Load()},
		{"trendscope_notifications_failed_total", "Total failed notifications", "counter", m.NotificationsFailed.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	for _, metric := range m.lines() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// StartServer serves metrics until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}

// Snapshot returns the counters as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	for _, metric := range m.lines() {
		out[metric.name] = metric.value
	}
	return out
}

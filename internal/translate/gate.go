package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/observability"
)

// Translator is a translation backend. Source language is auto-detected.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
	Name() string
}

// Gate decides whether text needs translation and calls the backend when it
// does. It never fails: errors fall back to the original text.
type Gate struct {
	backend   Translator
	cache     Cache
	target    string
	threshold float64
	maxChars  int
	delay     time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithCache sets the translation cache.
func WithCache(c Cache) Option { return func(g *Gate) { g.cache = c } }

// WithTarget sets the target language code.
func WithTarget(lang string) Option { return func(g *Gate) { g.target = lang } }

// WithThreshold sets the target-script share above which text is kept as is.
func WithThreshold(t float64) Option { return func(g *Gate) { g.threshold = t } }

// WithMaxChars sets the input truncation length.
func WithMaxChars(n int) Option { return func(g *Gate) { g.maxChars = n } }

// WithDelay sets the pause after each backend call.
func WithDelay(d time.Duration) Option { return func(g *Gate) { g.delay = d } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option { return func(g *Gate) { g.metrics = m } }

// NewGate creates a gate over backend. A nil backend disables translation.
func NewGate(backend Translator, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		backend:   backend,
		cache:     NopCache{},
		target:    "zh-CN",
		threshold: 0.3,
		maxChars:  2000,
		delay:     100 * time.Millisecond,
		logger:    logger.With("component", "translate_gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = observability.NewMetrics(logger)
	}
	return g
}

// FromConfig builds the backend, the cache and the gate described by cfg.
func FromConfig(cfg *config.TranslateConfig, logger *slog.Logger, metrics *observability.Metrics) (*Gate, error) {
	var backend Translator
	switch cfg.Backend {
	case "google":
		backend = NewGoogleTranslator(cfg.Endpoint, cfg.Timeout)
	case "openai":
		backend = NewOpenAITranslator(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown translate backend %q", cfg.Backend)
	}

	cache, err := NewCache(&cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	return NewGate(backend, logger,
		WithCache(cache),
		WithTarget(cfg.TargetLang),
		WithThreshold(cfg.Threshold),
		WithMaxChars(cfg.MaxChars),
		WithDelay(cfg.Delay),
		WithMetrics(metrics),
	), nil
}

// MaybeTranslate returns text translated into the target language, or text
// itself when it is blank, already mostly in the target script, or the
// backend fails.
func (g *Gate) MaybeTranslate(ctx context.Context, text string) string {
	if g.backend == nil || strings.TrimSpace(text) == "" {
		return text
	}
	if ratio, ok := TargetRatio(text, g.target); ok && ratio > g.threshold {
		g.metrics.TranslationsSkipped.Add(1)
		return text
	}

	input := truncateRunes(text, g.maxChars)
	key := cacheKey(g.target, input)
	if cached, ok := g.cache.Get(ctx, key); ok {
		g.metrics.TranslationCacheHits.Add(1)
		return cached
	}

	g.metrics.TranslationsRequested.Add(1)
	out, err := g.backend.Translate(ctx, input, g.target)
	g.pause(ctx)

	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("empty translation")
	}
	if err != nil {
		g.metrics.TranslationsFailed.Add(1)
		g.logger.Warn("translation failed, keeping original",
			"backend", g.backend.Name(),
			"error", err,
		)
		return text
	}

	g.cache.Set(ctx, key, out)
	return out
}

// Close releases the cache connection.
func (g *Gate) Close() error {
	return g.cache.Close()
}

func (g *Gate) pause(ctx context.Context) {
	if g.delay <= 0 {
		return
	}
	t := time.NewTimer(g.delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func cacheKey(target, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "trendscope:tr:" + target + ":" + hex.EncodeToString(sum[:])
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

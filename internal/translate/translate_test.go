package translate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/observability"
	"github.com/IshaanNene/trendscope/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type spyTranslator struct {
	calls   atomic.Int32
	lastLen atomic.Int32
	err     error
}

func (s *spyTranslator) Name() string { return "spy" }

func (s *spyTranslator) Translate(_ context.Context, text, target string) (string, error) {
	s.calls.Add(1)
	s.lastLen.Store(int32(len([]rune(text))))
	if s.err != nil {
		return "", s.err
	}
	return "译:" + text, nil
}

func newTestGate(backend Translator, opts ...Option) *Gate {
	opts = append([]Option{WithDelay(0)}, opts...)
	return NewGate(backend, testLogger, opts...)
}

func TestGateSkipsTargetScript(t *testing.T) {
	spy := &spyTranslator{}
	g := newTestGate(spy)

	text := "一个用于构建命令行工具的 Go 框架"
	if got := g.MaybeTranslate(context.Background(), text); got != text {
		t.Errorf("expected text unchanged, got %q", got)
	}
	if n := spy.calls.Load(); n != 0 {
		t.Errorf("expected no backend call, got %d", n)
	}
}

func TestGateTranslatesForeignText(t *testing.T) {
	spy := &spyTranslator{}
	m := observability.NewMetrics(testLogger)
	g := newTestGate(spy, WithMetrics(m))

	got := g.MaybeTranslate(context.Background(), "A fast web framework")
	if got != "译:A fast web framework" {
		t.Errorf("unexpected translation %q", got)
	}
	if m.TranslationsRequested.Load() != 1 {
		t.Errorf("expected 1 request, got %d", m.TranslationsRequested.Load())
	}
}

func TestGateFallbackOnFailure(t *testing.T) {
	spy := &spyTranslator{err: errors.New("quota exceeded")}
	m := observability.NewMetrics(testLogger)
	g := newTestGate(spy, WithMetrics(m))

	text := "Blazing fast bundler"
	if got := g.MaybeTranslate(context.Background(), text); got != text {
		t.Errorf("expected original text on failure, got %q", got)
	}
	if m.TranslationsFailed.Load() != 1 {
		t.Errorf("expected failure to be counted, got %d", m.TranslationsFailed.Load())
	}
}

func TestGateBlankAndNilBackend(t *testing.T) {
	spy := &spyTranslator{}
	g := newTestGate(spy)
	if got := g.MaybeTranslate(context.Background(), "   "); got != "   " {
		t.Errorf("expected blank text unchanged, got %q", got)
	}
	if spy.calls.Load() != 0 {
		t.Error("blank text should not reach the backend")
	}

	off := newTestGate(nil)
	if got := off.MaybeTranslate(context.Background(), "hello"); got != "hello" {
		t.Errorf("expected passthrough without backend, got %q", got)
	}
}

func TestGateTruncatesInput(t *testing.T) {
	spy := &spyTranslator{}
	g := newTestGate(spy, WithMaxChars(2000))

	g.MaybeTranslate(context.Background(), strings.Repeat("word ", 1000))
	if n := spy.lastLen.Load(); n != 2000 {
		t.Errorf("expected 2000 characters sent, got %d", n)
	}
}

func TestGateUsesCache(t *testing.T) {
	spy := &spyTranslator{}
	cache := NewMemoryCache(time.Hour)
	g := newTestGate(spy, WithCache(cache))

	first := g.MaybeTranslate(context.Background(), "Hello world")
	second := g.MaybeTranslate(context.Background(), "Hello world")
	if first != second {
		t.Errorf("cached result differs: %q vs %q", first, second)
	}
	if spy.calls.Load() != 1 {
		t.Errorf("expected one backend call, got %d", spy.calls.Load())
	}
	if cache.Len() != 1 {
		t.Errorf("expected one cache entry, got %d", cache.Len())
	}
}

func TestGateDelayRespectsContext(t *testing.T) {
	spy := &spyTranslator{}
	g := NewGate(spy, testLogger, WithDelay(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	g.MaybeTranslate(ctx, "some english")
	if time.Since(start) > time.Second {
		t.Error("delay should stop when the context is done")
	}
}

func TestTargetRatio(t *testing.T) {
	tests := []struct {
		text string
		lang string
		min  float64
		max  float64
		ok   bool
	}{
		{"全部中文", "zh-CN", 1, 1, true},
		{"abc中", "zh-CN", 0.25, 0.25, true},
		{"!!! ...", "zh-CN", 0, 0, false},
		{"ひらがなテキスト", "ja", 1, 1, true},
		{"한국어 text", "ko", 0.3, 0.5, true},
	}
	for _, tt := range tests {
		ratio, ok := TargetRatio(tt.text, tt.lang)
		if ok != tt.ok || ratio < tt.min || ratio > tt.max {
			t.Errorf("TargetRatio(%q, %s) = %v, %v", tt.text, tt.lang, ratio, ok)
		}
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "k", "v")
	if v, ok := c.Get(context.Background(), "k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestNewCacheTypes(t *testing.T) {
	c, err := NewCache(&config.CacheConfig{Type: "memory"}, testLogger)
	if err != nil {
		t.Fatalf("memory cache: %v", err)
	}
	if _, ok := c.(*MemoryCache); !ok {
		t.Errorf("expected *MemoryCache, got %T", c)
	}
	if _, err := NewCache(&config.CacheConfig{Type: "memcached"}, testLogger); err == nil {
		t.Error("expected error for unknown cache type")
	}
}

func TestGoogleTranslator(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[[["你好，","Hello, ",null,null,10],["世界","world",null,null,10]],null,"en"]`))
	}))
	defer ts.Close()

	tr := NewGoogleTranslator(ts.URL, 5*time.Second)
	got, err := tr.Translate(context.Background(), "Hello, world", "zh-CN")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "你好，世界" {
		t.Errorf("expected joined segments, got %q", got)
	}
	for _, want := range []string{"client=gtx", "sl=auto", "tl=zh-CN", "dt=t"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestGoogleTranslatorHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	tr := NewGoogleTranslator(ts.URL, 5*time.Second)
	_, err := tr.Translate(context.Background(), "Hello", "zh-CN")
	var te *types.TranslateError
	if !errors.As(err, &te) || te.Backend != "google" {
		t.Errorf("expected google TranslateError, got %v", err)
	}
}

func TestParseGoogleResponseMalformed(t *testing.T) {
	for _, body := range []string{``, `{}`, `[]`, `["x"]`} {
		if _, err := parseGoogleResponse([]byte(body)); err == nil {
			t.Errorf("expected error for %q", body)
		}
	}
}

func TestOpenAITranslator(t *testing.T) {
	var gotModel string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"m",
"choices":[{"index":0,"message":{"role":"assistant","content":"  快速的网络框架 "},"finish_reason":"stop"}]}`))
	}))
	defer ts.Close()

	tr := NewOpenAITranslator(ts.URL+"/v1", "test-key", "gpt-4o-mini")
	got, err := tr.Translate(context.Background(), "A fast web framework", "zh-CN")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "快速的网络框架" {
		t.Errorf("unexpected translation %q", got)
	}
	if gotModel != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", gotModel)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Translate
	cfg.Backend = "none"
	g, err := FromConfig(&cfg, testLogger, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if got := g.MaybeTranslate(context.Background(), "hello"); got != "hello" {
		t.Errorf("backend none should pass through, got %q", got)
	}

	cfg.Backend = "deepl"
	if _, err := FromConfig(&cfg, testLogger, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

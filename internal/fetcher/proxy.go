package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/IshaanNene/trendscope/internal/config"
)

// ProxyManager rotates outbound proxies and skips ones marked unhealthy.
type ProxyManager struct {
	proxies  []*proxyEntry
	rotation string
	index    atomic.Int64
	mu       sync.RWMutex
	logger   *slog.Logger
}

type proxyEntry struct {
	URL     *url.URL
	Healthy bool
	LastErr error
}

// NewProxyManager creates a new ProxyManager from configuration.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:  make([]*proxyEntry, 0, len(cfg.URLs)),
		rotation: cfg.Rotation,
		logger:   logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			pm.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, &proxyEntry{URL: u, Healthy: true})
	}

	pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	return pm
}

type proxyKey struct{}

// ProxyFunc returns an http.Transport-compatible proxy function. A proxy
// pinned on the request context by withProxy takes precedence.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(r *http.Request) (*url.URL, error) {
		if u, ok := r.Context().Value(proxyKey{}).(*url.URL); ok {
			return u, nil
		}
		return pm.Next(), nil // nil means direct connection
	}
}

// withProxy picks the proxy for one request and pins it on ctx, so the
// caller knows which proxy to blame when the request fails.
func (pm *ProxyManager) withProxy(ctx context.Context) (context.Context, *url.URL) {
	u := pm.Next()
	if u == nil {
		return ctx, nil
	}
	return context.WithValue(ctx, proxyKey{}, u), u
}

// isProxyFailure reports whether err came from reaching the proxy itself
// rather than the target site.
func isProxyFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Next returns the next proxy URL based on the rotation strategy.
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	healthy := pm.healthyProxies()
	if len(healthy) == 0 {
		return nil
	}

	switch pm.rotation {
	case "random":
		return healthy[rand.Intn(len(healthy))].URL
	default: // round_robin
		idx := (pm.index.Add(1) - 1) % int64(len(healthy))
		return healthy[idx].URL
	}
}

// MarkFailed takes a proxy out of rotation.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	pm.setHealth(proxyURL, false, err)
	pm.logger.Warn("proxy marked unhealthy",
		"proxy", proxyURL.Host,
		"remaining", pm.HealthyCount(),
		"error", err,
	)
}

// HealthyCount returns the number of healthy proxies.
func (pm *ProxyManager) HealthyCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.healthyProxies())
}

func (pm *ProxyManager) setHealth(proxyURL *url.URL, healthy bool, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.proxies {
		if p.URL.String() == proxyURL.String() {
			p.Healthy = healthy
			p.LastErr = err
			return
		}
	}
}

func (pm *ProxyManager) healthyProxies() []*proxyEntry {
	healthy := make([]*proxyEntry, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		if p.Healthy {
			healthy = append(healthy, p)
		}
	}
	return healthy
}

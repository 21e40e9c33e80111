package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostThrottle spaces out requests to the same host. A zero interval
// disables throttling.
type HostThrottle struct {
	interval time.Duration
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostThrottle creates a throttle allowing one request per interval per host.
func NewHostThrottle(interval time.Duration) *HostThrottle {
	return &HostThrottle{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until host may be contacted again or ctx is done.
func (t *HostThrottle) Wait(ctx context.Context, host string) error {
	if t == nil || t.interval <= 0 {
		return nil
	}
	return t.limiter(host).Wait(ctx)
}

func (t *HostThrottle) limiter(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[host] = l
	}
	return l
}

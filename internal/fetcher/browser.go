package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod. Both
// zread pages and the GitHub listing are fetched this way because their
// content is rendered client-side.
type BrowserFetcher struct {
	browser  *rod.Browser
	cfg      *config.FetcherConfig
	logger   *slog.Logger
	proxyMgr *ProxyManager
	throttle *HostThrottle
	pagePool chan *rod.Page
	maxPages int
	viewport viewport
}

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithBrowserProxy sets the proxy manager for browser requests.
func WithBrowserProxy(pm *ProxyManager) BrowserOption {
	return func(bf *BrowserFetcher) { bf.proxyMgr = pm }
}

// WithMaxPages sets the maximum number of pooled browser pages.
func WithMaxPages(n int) BrowserOption {
	return func(bf *BrowserFetcher) { bf.maxPages = n }
}

// NewBrowserFetcher launches Chromium and connects to it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger, opts ...BrowserOption) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:      &cfg.Fetcher,
		logger:   logger.With("component", "browser_fetcher"),
		throttle: NewHostThrottle(cfg.Fetcher.PolitenessDelay),
		maxPages: cfg.Enrich.Concurrency,
		viewport: randomViewport(),
	}

	for _, opt := range opts {
		opt(bf)
	}
	if bf.maxPages < 1 {
		bf.maxPages = 1
	}

	launchURL, err := bf.launchBrowser()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bf.browser = browser
	bf.pagePool = make(chan *rod.Page, bf.maxPages)

	bf.logger.Info("browser fetcher ready",
		"max_pages", bf.maxPages,
		"stealth", bf.cfg.Stealth,
	)

	return bf, nil
}

// launchBrowser starts a Chromium instance with appropriate flags.
func (bf *BrowserFetcher) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", bf.viewport.windowSize())

	if bf.cfg.BrowserBin != "" {
		l = l.Bin(bf.cfg.BrowserBin)
	}

	if bf.proxyMgr != nil {
		if proxyURL := bf.proxyMgr.Next(); proxyURL != nil {
			l = l.Proxy(proxyURL.String())
		}
	}

	return l.Launch()
}

// Fetch navigates to a URL, waits for the page to settle and returns the
// rendered DOM. A navigation timeout on a listing page is logged and the
// partially loaded page is still read; on any other page it fails the fetch.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	start := time.Now()

	if err := bf.throttle.Wait(ctx, req.Domain()); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	page, err := bf.getPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}
	defer bf.putPage(page)

	page = page.Context(ctx)

	if ua := req.Headers.Get("User-Agent"); ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}

	timeout := bf.cfg.RenderTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	err = page.Timeout(timeout).Navigate(req.URLString())
	if err != nil {
		if err := navigationError(req, err); err != nil {
			return nil, err
		}
		bf.logger.Warn("navigation timeout, reading partial page", "url", req.URLString(), "timeout", timeout)
	} else if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", req.URLString(), "error", err)
	}

	if req.WaitSelector != "" {
		if _, err := page.Timeout(10 * time.Second).Element(req.WaitSelector); err != nil {
			bf.logger.Warn("wait selector timeout", "selector", req.WaitSelector, "error", err)
		}
	}

	if req.SettleDelay > 0 {
		select {
		case <-time.After(req.SettleDelay):
		case <-ctx.Done():
			return nil, &types.FetchError{URL: req.URLString(), Err: ctx.Err()}
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	resp := types.NewBrowserResponse(req, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return resp, nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	close(bf.pagePool)
	for page := range bf.pagePool {
		_ = page.Close()
	}
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// getPage retrieves a page from the pool or opens a new one.
func (bf *BrowserFetcher) getPage() (*rod.Page, error) {
	select {
	case page := <-bf.pagePool:
		return page, nil
	default:
	}

	var (
		page *rod.Page
		err  error
	)
	if bf.cfg.Stealth {
		page, err = stealth.Page(bf.browser)
	} else {
		page, err = bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  bf.viewport.Width,
		Height: bf.viewport.Height,
	})
	return page, nil
}

// putPage returns a page to the pool.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	page = page.Context(context.Background())
	_ = page.Navigate("about:blank")

	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}

// navigationError decides whether a failed navigation ends the fetch. Only a
// listing page may be read after its navigation deadline passes.
func navigationError(req *types.Request, err error) error {
	if !errors.Is(err, context.DeadlineExceeded) {
		return &types.FetchError{URL: req.URLString(), Err: err, Retryable: true}
	}
	if req.Tag != types.TagListing {
		return &types.FetchError{URL: req.URLString(), Err: fmt.Errorf("%w: %v", types.ErrTimeout, err)}
	}
	return nil
}

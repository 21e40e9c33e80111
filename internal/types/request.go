package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Request tags.
const (
	TagListing = "listing"
	TagDetail  = "detail"
)

// Request describes a page to retrieve.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// Timeout overrides the fetcher's default timeout for this request.
	Timeout time.Duration

	// SettleDelay is how long a rendering fetcher waits after navigation
	// before reading the DOM.
	SettleDelay time.Duration

	// WaitSelector, if set, is awaited (best effort) after navigation.
	WaitSelector string

	// Tag categorizes this request ("listing" or "detail").
	Tag string

	// Source is the trending source the page belongs to.
	Source Source

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a GET Request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:       u,
		Method:    http.MethodGet,
		Headers:   make(http.Header),
		CreatedAt: time.Now(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

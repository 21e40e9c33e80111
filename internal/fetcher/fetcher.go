package fetcher

import (
	"context"

	"github.com/IshaanNene/trendscope/internal/types"
)

// Fetcher retrieves a page for the extractor or an enricher.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// FetchHTML is a convenience wrapper returning the body as text.
func FetchHTML(ctx context.Context, f Fetcher, req *types.Request) (string, error) {
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Body) == 0 {
		return "", &types.FetchError{URL: req.URLString(), StatusCode: resp.StatusCode, Err: types.ErrEmptyPage}
	}
	return resp.HTML(), nil
}

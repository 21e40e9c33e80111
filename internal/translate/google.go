package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/IshaanNene/trendscope/internal/types"
)

// GoogleTranslator calls the public translate_a/single endpoint used by the
// Google Translate web client.
type GoogleTranslator struct {
	endpoint string
	client   *http.Client
}

// NewGoogleTranslator creates a translator against endpoint.
func NewGoogleTranslator(endpoint string, timeout time.Duration) *GoogleTranslator {
	return &GoogleTranslator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Translator.
func (t *GoogleTranslator) Name() string { return "google" }

// Translate implements Translator.
func (t *GoogleTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", targetLang)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", &types.TranslateError{Backend: t.Name(), Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &types.TranslateError{Backend: t.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &types.TranslateError{Backend: t.Name(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &types.TranslateError{Backend: t.Name(), Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	out, err := parseGoogleResponse(body)
	if err != nil {
		return "", &types.TranslateError{Backend: t.Name(), Err: err}
	}
	return out, nil
}

// parseGoogleResponse joins the translated segments of a response shaped
// like [[["translated","source",...],...],...].
func parseGoogleResponse(body []byte) (string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty response")
	}

	var segments [][]any
	if err := json.Unmarshal(raw[0], &segments); err != nil {
		return "", fmt.Errorf("decode segments: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	return b.String(), nil
}

package fetcher

import (
	"fmt"
	"math/rand"
	"net/http"
)

// viewport is a desktop window size reported by the browser fetcher.
type viewport struct {
	Width  int
	Height int
}

var desktopViewports = []viewport{
	{1920, 1080}, {1366, 768}, {1536, 864}, {1440, 900},
}

// randomViewport picks a common desktop resolution.
func randomViewport() viewport {
	return desktopViewports[rand.Intn(len(desktopViewports))]
}

func (v viewport) windowSize() string {
	return fmt.Sprintf("%d,%d", v.Width, v.Height)
}

// applyBrowserHeaders fills in the navigation headers a desktop Chrome sends,
// leaving any header the caller already set.
func applyBrowserHeaders(h http.Header) {
	defaults := [][2]string{
		{"Sec-Fetch-Dest", "document"},
		{"Sec-Fetch-Mode", "navigate"},
		{"Sec-Fetch-Site", "none"},
		{"Sec-Fetch-User", "?1"},
		{"Upgrade-Insecure-Requests", "1"},
		{"Sec-Ch-Ua", `"Chromium";v="120", "Not?A_Brand";v="8", "Google Chrome";v="120"`},
		{"Sec-Ch-Ua-Mobile", "?0"},
		{"Sec-Ch-Ua-Platform", `"Windows"`},
	}
	for _, kv := range defaults {
		if h.Get(kv[0]) == "" {
			h.Set(kv[0], kv[1])
		}
	}
}

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	for name, src := range map[string]SourceConfig{"zread": cfg.Sources.Zread, "github": cfg.Sources.GitHub} {
		if _, err := ParseClock(src.Time); err != nil {
			return fmt.Errorf("sources.%s.time: %w", name, err)
		}
		if err := ValidateURL(src.URL); err != nil {
			return fmt.Errorf("sources.%s.url: %w", name, err)
		}
		if err := ValidateURL(src.BaseURL); err != nil {
			return fmt.Errorf("sources.%s.base_url: %w", name, err)
		}
		if src.SettleDelay < 0 {
			return fmt.Errorf("sources.%s.settle_delay must be >= 0", name)
		}
	}

	if cfg.Fetcher.PageTimeout <= 0 || cfg.Fetcher.DetailTimeout <= 0 || cfg.Fetcher.RenderTimeout <= 0 {
		return fmt.Errorf("fetcher timeouts must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.PolitenessDelay < 0 {
		return fmt.Errorf("fetcher.politeness_delay must be >= 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Enrich.Concurrency < 1 {
		return fmt.Errorf("enrich.concurrency must be >= 1, got %d", cfg.Enrich.Concurrency)
	}
	if cfg.Enrich.BatchSize < 1 {
		return fmt.Errorf("enrich.batch_size must be >= 1, got %d", cfg.Enrich.BatchSize)
	}

	switch cfg.Translate.Backend {
	case "google", "openai", "none":
	default:
		return fmt.Errorf("translate.backend must be google/openai/none, got %q", cfg.Translate.Backend)
	}
	if cfg.Translate.Threshold <= 0 || cfg.Translate.Threshold > 1 {
		return fmt.Errorf("translate.threshold must be in (0, 1], got %v", cfg.Translate.Threshold)
	}
	if cfg.Translate.MaxChars < 1 {
		return fmt.Errorf("translate.max_chars must be >= 1, got %d", cfg.Translate.MaxChars)
	}
	if cfg.Translate.Delay < 0 {
		return fmt.Errorf("translate.delay must be >= 0")
	}
	if cfg.Translate.Backend == "openai" && cfg.Translate.OpenAI.APIKey == "" {
		return fmt.Errorf("translate.openai.api_key is required for the openai backend")
	}
	switch cfg.Translate.Cache.Type {
	case "memory", "redis", "none", "":
	default:
		return fmt.Errorf("translate.cache.type must be memory/redis/none, got %q", cfg.Translate.Cache.Type)
	}

	validFormats := map[string]bool{"markdown": true, "html": true}
	if len(cfg.Report.Formats) == 0 {
		return fmt.Errorf("report.formats must name at least one format")
	}
	for _, f := range cfg.Report.Formats {
		if !validFormats[f] {
			return fmt.Errorf("report format %q is not supported (valid: markdown, html)", f)
		}
	}
	if cfg.Report.OutputDir == "" {
		return fmt.Errorf("report.output_dir must not be empty")
	}

	if cfg.Notification.Enabled && cfg.Notification.WeChatWebhookURL != "" {
		if err := ValidateURL(cfg.Notification.WeChatWebhookURL); err != nil {
			return fmt.Errorf("notification.wechat_webhook_url: %w", err)
		}
	}

	validStorageTypes := map[string]bool{
		"none": true, "json": true, "jsonl": true, "csv": true, "mongodb": true,
	}
	storageTypes := SplitList(cfg.Storage.Type)
	if len(storageTypes) == 0 {
		return fmt.Errorf("storage.type must not be empty")
	}
	for _, st := range storageTypes {
		if !validStorageTypes[st] {
			return fmt.Errorf("storage.type %q is not supported (valid: none, json, jsonl, csv, mongodb)", st)
		}
		if st == "mongodb" && cfg.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for mongodb storage")
		}
	}

	if cfg.Schedule.Tick < time.Second {
		return fmt.Errorf("schedule.tick must be >= 1s, got %v", cfg.Schedule.Tick)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" schedule time.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("time must be HH:MM, got %q", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String renders the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

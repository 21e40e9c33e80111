package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for trendscope.
type Config struct {
	Sources      SourcesConfig      `mapstructure:"sources"      yaml:"sources"`
	Fetcher      FetcherConfig      `mapstructure:"fetcher"      yaml:"fetcher"`
	Proxy        ProxyConfig        `mapstructure:"proxy"        yaml:"proxy"`
	Enrich       EnrichConfig       `mapstructure:"enrich"       yaml:"enrich"`
	Translate    TranslateConfig    `mapstructure:"translate"    yaml:"translate"`
	Report       ReportConfig       `mapstructure:"report"       yaml:"report"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Storage      StorageConfig      `mapstructure:"storage"      yaml:"storage"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"     yaml:"schedule"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"      yaml:"metrics"`
}

// SourcesConfig holds one task per trending source.
type SourcesConfig struct {
	Zread  SourceConfig `mapstructure:"zread"  yaml:"zread"`
	GitHub SourceConfig `mapstructure:"github" yaml:"github"`
}

// SourceConfig controls one trending source.
type SourceConfig struct {
	Enabled bool   `mapstructure:"enabled"  yaml:"enabled"`
	Time    string `mapstructure:"time"     yaml:"time"` // HH:MM, daily schedule
	URL     string `mapstructure:"url"      yaml:"url"`  // listing page
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// SettleDelay is the wait after the listing page navigation.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// Languages restricts the report to these languages when non-empty.
	Languages []string `mapstructure:"languages" yaml:"languages"`
}

// FetcherConfig controls page retrieval.
type FetcherConfig struct {
	UserAgents      []string      `mapstructure:"user_agents"      yaml:"user_agents"`
	PageTimeout     time.Duration `mapstructure:"page_timeout"     yaml:"page_timeout"`
	DetailTimeout   time.Duration `mapstructure:"detail_timeout"   yaml:"detail_timeout"`
	RenderTimeout   time.Duration `mapstructure:"render_timeout"   yaml:"render_timeout"`
	DetailSettle    time.Duration `mapstructure:"detail_settle"    yaml:"detail_settle"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"`
	MaxBodySize     int64         `mapstructure:"max_body_size"    yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects"    yaml:"max_redirects"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"     yaml:"tls_insecure"`
	Stealth         bool          `mapstructure:"stealth"          yaml:"stealth"`
	BrowserBin      string        `mapstructure:"browser_bin"      yaml:"browser_bin"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// EnrichConfig controls the detail enrichment stage.
type EnrichConfig struct {
	Enabled     bool `mapstructure:"enabled"     yaml:"enabled"`
	Concurrency int  `mapstructure:"concurrency" yaml:"concurrency"`
	BatchSize   int  `mapstructure:"batch_size"  yaml:"batch_size"`
}

// TranslateConfig controls the translation gate and its backend.
type TranslateConfig struct {
	Backend    string        `mapstructure:"backend"     yaml:"backend"` // google, openai, none
	TargetLang string        `mapstructure:"target_lang" yaml:"target_lang"`
	Threshold  float64       `mapstructure:"threshold"   yaml:"threshold"`
	MaxChars   int           `mapstructure:"max_chars"   yaml:"max_chars"`
	Delay      time.Duration `mapstructure:"delay"       yaml:"delay"`
	Timeout    time.Duration `mapstructure:"timeout"     yaml:"timeout"`
	Endpoint   string        `mapstructure:"endpoint"    yaml:"endpoint"`
	OpenAI     OpenAIConfig  `mapstructure:"openai"      yaml:"openai"`
	Cache      CacheConfig   `mapstructure:"cache"       yaml:"cache"`
}

// OpenAIConfig configures the LLM translation backend.
type OpenAIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key"  yaml:"api_key"`
	Model   string `mapstructure:"model"    yaml:"model"`
}

// CacheConfig controls the translation cache.
type CacheConfig struct {
	Type          string        `mapstructure:"type"           yaml:"type"` // memory, redis, none
	RedisAddr     string        `mapstructure:"redis_addr"     yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"       yaml:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"            yaml:"ttl"`
}

// ReportConfig controls report rendering.
type ReportConfig struct {
	Formats     []string `mapstructure:"formats"      yaml:"formats"`
	OutputDir   string   `mapstructure:"output_dir"   yaml:"output_dir"`
	TemplateDir string   `mapstructure:"template_dir" yaml:"template_dir"`
}

// NotificationConfig controls the summary push.
type NotificationConfig struct {
	Enabled          bool        `mapstructure:"enabled"            yaml:"enabled"`
	WeChatWebhookURL string      `mapstructure:"wechat_webhook_url" yaml:"wechat_webhook_url"`
	Email            EmailConfig `mapstructure:"email"              yaml:"email"`
}

// EmailConfig configures the SMTP notifier.
type EmailConfig struct {
	Recipient      string `mapstructure:"recipient"       yaml:"recipient"`
	SMTPServer     string `mapstructure:"smtp_server"     yaml:"smtp_server"`
	SMTPPort       int    `mapstructure:"smtp_port"       yaml:"smtp_port"`
	SMTPUser       string `mapstructure:"smtp_user"       yaml:"smtp_user"`
	SMTPPassword   string `mapstructure:"smtp_password"   yaml:"smtp_password"`
	UseTLS         bool   `mapstructure:"use_tls"         yaml:"use_tls"`
	SendAttachment bool   `mapstructure:"send_attachment" yaml:"send_attachment"`
}

// StorageConfig controls the optional run archive.
type StorageConfig struct {
	Type            string `mapstructure:"type"             yaml:"type"` // none, json, jsonl, csv, mongodb
	OutputPath      string `mapstructure:"output_path"      yaml:"output_path"`
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// ScheduleConfig controls the daily scheduler.
type ScheduleConfig struct {
	// Tick is how often due jobs are checked.
	Tick time.Duration `mapstructure:"tick"       yaml:"tick"`
	// StateFile records the last run day per source across restarts.
	// Empty disables persistence.
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults. Notifications are
// off by default so a local run never pushes anything.
func DefaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			Zread: SourceConfig{
				Enabled:     true,
				Time:        "09:00",
				URL:         "https://zread.ai/trending",
				BaseURL:     "https://zread.ai",
				SettleDelay: 5 * time.Second,
			},
			GitHub: SourceConfig{
				Enabled:     true,
				Time:        "09:30",
				URL:         "https://github.com/trending",
				BaseURL:     "https://github.com",
				SettleDelay: 3 * time.Second,
			},
		},
		Fetcher: FetcherConfig{
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			PageTimeout:   60 * time.Second,
			DetailTimeout: 10 * time.Second,
			RenderTimeout: 30 * time.Second,
			DetailSettle:  2 * time.Second,
			MaxBodySize:   10 * 1024 * 1024, // 10MB
			MaxRedirects:  10,
		},
		Proxy: ProxyConfig{
			Rotation: "round_robin",
		},
		Enrich: EnrichConfig{
			Enabled:     true,
			Concurrency: 3,
			BatchSize:   20,
		},
		Translate: TranslateConfig{
			Backend:    "google",
			TargetLang: "zh-CN",
			Threshold:  0.3,
			MaxChars:   2000,
			Delay:      100 * time.Millisecond,
			Timeout:    15 * time.Second,
			Endpoint:   "https://translate.googleapis.com/translate_a/single",
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			Cache: CacheConfig{
				Type:      "memory",
				RedisAddr: "localhost:6379",
				TTL:       7 * 24 * time.Hour,
			},
		},
		Report: ReportConfig{
			Formats:   []string{"markdown", "html"},
			OutputDir: "reports",
		},
		Notification: NotificationConfig{
			Email: EmailConfig{
				SMTPPort:       587,
				UseTLS:         true,
				SendAttachment: true,
			},
		},
		Storage: StorageConfig{
			Type:            "none",
			OutputPath:      "./output",
			MongoDatabase:   "trendscope",
			MongoCollection: "runs",
		},
		Schedule: ScheduleConfig{
			Tick:      time.Minute,
			StateFile: ".trendscope/schedule.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Source returns the config block for a source name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	switch name {
	case "zread":
		return c.Sources.Zread, true
	case "github":
		return c.Sources.GitHub, true
	default:
		return SourceConfig{}, false
	}
}

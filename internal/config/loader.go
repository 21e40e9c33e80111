package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and a local .env file.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
// CLI flags are applied by the caller after Load returns.
func Load(configPath string) (*Config, error) {
	// A missing .env is fine; a malformed one is not worth failing on either.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("TRENDSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("trendscope")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".trendscope"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyLegacyEnv(cfg)
	return cfg, nil
}

// setDefaults registers default values in viper so AutomaticEnv can see every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	for name, src := range map[string]SourceConfig{"zread": cfg.Sources.Zread, "github": cfg.Sources.GitHub} {
		prefix := "sources." + name + "."
		v.SetDefault(prefix+"enabled", src.Enabled)
		v.SetDefault(prefix+"time", src.Time)
		v.SetDefault(prefix+"url", src.URL)
		v.SetDefault(prefix+"base_url", src.BaseURL)
		v.SetDefault(prefix+"settle_delay", src.SettleDelay)
		v.SetDefault(prefix+"languages", src.Languages)
	}

	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.page_timeout", cfg.Fetcher.PageTimeout)
	v.SetDefault("fetcher.detail_timeout", cfg.Fetcher.DetailTimeout)
	v.SetDefault("fetcher.render_timeout", cfg.Fetcher.RenderTimeout)
	v.SetDefault("fetcher.detail_settle", cfg.Fetcher.DetailSettle)
	v.SetDefault("fetcher.politeness_delay", cfg.Fetcher.PolitenessDelay)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)
	v.SetDefault("fetcher.browser_bin", cfg.Fetcher.BrowserBin)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)

	v.SetDefault("enrich.enabled", cfg.Enrich.Enabled)
	v.SetDefault("enrich.concurrency", cfg.Enrich.Concurrency)
	v.SetDefault("enrich.batch_size", cfg.Enrich.BatchSize)

	v.SetDefault("translate.backend", cfg.Translate.Backend)
	v.SetDefault("translate.target_lang", cfg.Translate.TargetLang)
	v.SetDefault("translate.threshold", cfg.Translate.Threshold)
	v.SetDefault("translate.max_chars", cfg.Translate.MaxChars)
	v.SetDefault("translate.delay", cfg.Translate.Delay)
	v.SetDefault("translate.timeout", cfg.Translate.Timeout)
	v.SetDefault("translate.endpoint", cfg.Translate.Endpoint)
	v.SetDefault("translate.openai.base_url", cfg.Translate.OpenAI.BaseURL)
	v.SetDefault("translate.openai.api_key", cfg.Translate.OpenAI.APIKey)
	v.SetDefault("translate.openai.model", cfg.Translate.OpenAI.Model)
	v.SetDefault("translate.cache.type", cfg.Translate.Cache.Type)
	v.SetDefault("translate.cache.redis_addr", cfg.Translate.Cache.RedisAddr)
	v.SetDefault("translate.cache.redis_password", cfg.Translate.Cache.RedisPassword)
	v.SetDefault("translate.cache.redis_db", cfg.Translate.Cache.RedisDB)
	v.SetDefault("translate.cache.ttl", cfg.Translate.Cache.TTL)

	v.SetDefault("report.formats", cfg.Report.Formats)
	v.SetDefault("report.output_dir", cfg.Report.OutputDir)
	v.SetDefault("report.template_dir", cfg.Report.TemplateDir)

	v.SetDefault("notification.enabled", cfg.Notification.Enabled)
	v.SetDefault("notification.wechat_webhook_url", cfg.Notification.WeChatWebhookURL)
	v.SetDefault("notification.email.recipient", cfg.Notification.Email.Recipient)
	v.SetDefault("notification.email.smtp_server", cfg.Notification.Email.SMTPServer)
	v.SetDefault("notification.email.smtp_port", cfg.Notification.Email.SMTPPort)
	v.SetDefault("notification.email.smtp_user", cfg.Notification.Email.SMTPUser)
	v.SetDefault("notification.email.smtp_password", cfg.Notification.Email.SMTPPassword)
	v.SetDefault("notification.email.use_tls", cfg.Notification.Email.UseTLS)
	v.SetDefault("notification.email.send_attachment", cfg.Notification.Email.SendAttachment)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)

	v.SetDefault("schedule.tick", cfg.Schedule.Tick)
	v.SetDefault("schedule.state_file", cfg.Schedule.StateFile)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

// applyLegacyEnv honours the unprefixed variables used by existing deployments
// (CI secrets, crontab entries).
func applyLegacyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("ZREAD_ENABLED"); ok && v != "" {
		cfg.Sources.Zread.Enabled = truthy(v)
	}
	if v, ok := os.LookupEnv("GITHUB_ENABLED"); ok && v != "" {
		cfg.Sources.GitHub.Enabled = truthy(v)
	}

	notifyEnv, notifySet := os.LookupEnv("NOTIFICATION_ENABLED")
	if notifySet && notifyEnv != "" {
		cfg.Notification.Enabled = truthy(notifyEnv)
	}
	if v := os.Getenv("WECHAT_WEBHOOK_URL"); v != "" {
		cfg.Notification.WeChatWebhookURL = v
		// A webhook alone turns notifications on unless explicitly disabled.
		if !notifySet {
			cfg.Notification.Enabled = true
		}
	}

	if v := os.Getenv("REPORT_FORMATS"); v != "" {
		cfg.Report.Formats = SplitList(v)
	}

	email := &cfg.Notification.Email
	if v := os.Getenv("EMAIL_RECIPIENT"); v != "" {
		email.Recipient = v
	}
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		email.SMTPServer = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			email.SMTPPort = port
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		email.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		email.SMTPPassword = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Translate.OpenAI.APIKey == "" {
		cfg.Translate.OpenAI.APIKey = v
	}
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

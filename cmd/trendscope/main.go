package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/observability"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "trendscope",
		Short: "trendscope — daily trending digest for zread.ai and GitHub",
		Long: `trendscope reads the zread.ai and GitHub trending pages, enriches each
project from its detail page, translates descriptions into the target
language and publishes a daily report.

Features:
  • Listing extraction for GitHub and generic trending pages
  • Detail enrichment with bounded concurrency
  • Script-ratio translation gate (Google or OpenAI backend, cached)
  • Markdown and HTML reports
  • WeCom webhook and e-mail summaries
  • JSON, JSONL, CSV and MongoDB archives
  • Daily scheduling and a Prometheus metrics endpoint`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("trendscope %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			for _, name := range []string{"zread", "github"} {
				src, _ := cfg.Source(name)
				fmt.Printf("Source %s:\n", name)
				fmt.Printf("  Enabled:           %v\n", src.Enabled)
				fmt.Printf("  Daily Time:        %s\n", src.Time)
				fmt.Printf("  Listing URL:       %s\n", src.URL)
				fmt.Printf("  Settle Delay:      %s\n", src.SettleDelay)
				if len(src.Languages) > 0 {
					fmt.Printf("  Languages:         %s\n", strings.Join(src.Languages, ", "))
				}
			}
			fmt.Printf("\nEnrich:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Enrich.Enabled)
			fmt.Printf("  Concurrency:       %d\n", cfg.Enrich.Concurrency)
			fmt.Printf("  Batch Size:        %d\n", cfg.Enrich.BatchSize)
			fmt.Printf("\nTranslate:\n")
			fmt.Printf("  Backend:           %s\n", cfg.Translate.Backend)
			fmt.Printf("  Target:            %s\n", cfg.Translate.TargetLang)
			fmt.Printf("  Threshold:         %.2f\n", cfg.Translate.Threshold)
			fmt.Printf("  Cache:             %s\n", cfg.Translate.Cache.Type)
			fmt.Printf("\nReport:\n")
			fmt.Printf("  Formats:           %s\n", strings.Join(cfg.Report.Formats, ", "))
			fmt.Printf("  Output Dir:        %s\n", cfg.Report.OutputDir)
			fmt.Printf("\nNotification:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Notification.Enabled)
			fmt.Printf("  WeCom Webhook:     %v\n", cfg.Notification.WeChatWebhookURL != "")
			fmt.Printf("  E-mail Recipient:  %s\n", cfg.Notification.Email.Recipient)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startMetrics serves metrics until ctx ends, when enabled.
func startMetrics(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
		logger.Warn("failed to start metrics server", "error", err)
	}
}

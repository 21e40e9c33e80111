package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/trendscope/internal/parser"
	"github.com/IshaanNene/trendscope/internal/pipeline"
	"github.com/IshaanNene/trendscope/internal/translate"
	"github.com/IshaanNene/trendscope/internal/types"
)

var (
	extractSource    string
	extractBaseURL   string
	extractOutput    string
	extractTranslate bool
)

// extractCmd creates the "extract" subcommand.
func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract [file.html]",
		Short: "Extract projects from a saved listing page",
		Long: `Run the listing extractor and the post-extraction pipeline over a saved
HTML page (for example a *_trending_raw.html dump) and print the projects
as JSON. Nothing is fetched; translation runs only with --translate.`,
		Args: cobra.ExactArgs(1),
		RunE: runExtract,
	}

	cmd.Flags().StringVarP(&extractSource, "source", "s", "github", "listing layout: zread or github")
	cmd.Flags().StringVar(&extractBaseURL, "base-url", "", "site origin for project URLs (default from config)")
	cmd.Flags().StringVarP(&extractOutput, "output", "o", "", "write JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&extractTranslate, "translate", false, "translate generic-listing descriptions")

	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	source, err := types.ParseSource(extractSource)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(&cfg.Logging)

	html, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}

	baseURL := extractBaseURL
	if baseURL == "" {
		src, _ := cfg.Source(string(source))
		baseURL = src.BaseURL
	}

	var gate parser.Gate = parser.NopGate{}
	if extractTranslate {
		g, err := translate.FromConfig(&cfg.Translate, logger, nil)
		if err != nil {
			return err
		}
		defer g.Close()
		gate = g
	}

	extractor, err := parser.New(source, baseURL, gate, logger)
	if err != nil {
		return err
	}
	summaries := extractor.Extract(context.Background(), string(html))
	if len(summaries) == 0 {
		return fmt.Errorf("%s: %w", args[0], types.ErrNoProjects)
	}

	projects, dropped := pipeline.Default(logger).ProcessAll(types.NewProjects(summaries))
	data, err := types.NewRun(source, projects).ToJSON()
	if err != nil {
		return err
	}

	if extractOutput == "" {
		fmt.Println(string(data))
	} else if err := os.WriteFile(extractOutput, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	logger.Info("extracted", "projects", len(projects), "dropped", dropped)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/trendscope/internal/engine"
	"github.com/IshaanNene/trendscope/internal/observability"
	"github.com/IshaanNene/trendscope/internal/types"
)

var (
	runZread   bool
	runGitHub  bool
	runSources []string

	zreadOnly  bool
	githubOnly bool
)

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once for the selected sources",
		Long: `Fetch the selected trending listings, enrich and translate the projects,
write the reports and send the configured notifications. Sources run
concurrently; one failing source does not stop the others.`,
		Example: `  trendscope run --github
  trendscope run --zread --github
  trendscope run --source github`,
		RunE: runRun,
	}

	cmd.Flags().BoolVar(&runZread, "zread", false, "run the zread.ai task")
	cmd.Flags().BoolVar(&runGitHub, "github", false, "run the GitHub task")
	cmd.Flags().StringSliceVarP(&runSources, "source", "s", nil, "sources to run (zread, github)")

	return cmd
}

// selectedSources merges the boolean flags and --source into a
// de-duplicated list in run order.
func selectedSources(zread, github bool, names []string) ([]types.Source, error) {
	want := map[types.Source]bool{
		types.SourceZread:  zread,
		types.SourceGitHub: github,
	}
	for _, name := range names {
		source, err := types.ParseSource(name)
		if err != nil {
			return nil, err
		}
		want[source] = true
	}

	var sources []types.Source
	for _, source := range types.AllSources {
		if want[source] {
			sources = append(sources, source)
		}
	}
	return sources, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	sources, err := selectedSources(runZread, runGitHub, runSources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return cmd.Help()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(&cfg.Logging)

	ctx, stop := signalContext()
	defer stop()

	metrics := observability.NewMetrics(logger)
	startMetrics(ctx, cfg, metrics, logger)

	runner, err := engine.NewRunner(cfg, logger, engine.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer runner.Close()

	start := time.Now()
	results, runErr := runner.RunAll(ctx, sources)

	fmt.Printf("\n✅ Finished in %s\n", time.Since(start).Round(time.Millisecond))
	for i, res := range results {
		if res == nil {
			fmt.Printf("   %-7s failed\n", sources[i].DisplayName()+":")
			continue
		}
		fmt.Printf("   %-7s %d projects, %d enriched, %d dropped\n",
			sources[i].DisplayName()+":", res.Run.Total(), res.Enriched, res.Dropped)
		for _, o := range res.Outputs {
			fmt.Printf("            %s\n", o.Path)
		}
	}
	return runErr
}

// scheduleCmd creates the "schedule" subcommand.
func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run each enabled source daily at its configured time",
		Long: `Start the daily scheduler. Each enabled source runs once a day at
sources.<name>.time (zread 09:00 and github 09:30 by default). The
scheduler stops on SIGINT or SIGTERM after the runs in flight end.`,
		RunE: runSchedule,
	}

	cmd.Flags().BoolVar(&zreadOnly, "zread-only", false, "schedule only the zread.ai task")
	cmd.Flags().BoolVar(&githubOnly, "github-only", false, "schedule only the GitHub task")
	cmd.MarkFlagsMutuallyExclusive("zread-only", "github-only")

	return cmd
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(&cfg.Logging)

	var only []types.Source
	switch {
	case zreadOnly:
		only = []types.Source{types.SourceZread}
	case githubOnly:
		only = []types.Source{types.SourceGitHub}
	}
	jobs, err := engine.JobsFromConfig(cfg, only)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return errors.New("no enabled source to schedule (check sources.<name>.enabled)")
	}

	ctx, stop := signalContext()
	defer stop()

	metrics := observability.NewMetrics(logger)
	startMetrics(ctx, cfg, metrics, logger)

	runner, err := engine.NewRunner(cfg, logger, engine.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer runner.Close()

	opts := []engine.SchedulerOption{engine.WithTick(cfg.Schedule.Tick)}
	if cfg.Schedule.StateFile != "" {
		opts = append(opts, engine.WithCheckpoint(engine.NewCheckpointManager(cfg.Schedule.StateFile)))
	}
	sched := engine.NewScheduler(jobs, func(ctx context.Context, source types.Source) error {
		_, err := runner.Run(ctx, source)
		return err
	}, logger, opts...)

	fmt.Println("⏰ Scheduler started (Ctrl+C to stop)")
	for _, j := range jobs {
		fmt.Printf("   %-7s daily at %s\n", j.Source.DisplayName()+":", j.At)
	}
	return sched.Run(ctx)
}

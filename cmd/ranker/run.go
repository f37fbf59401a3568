package main

import (
	"fmt"
	"os"

	"github.com/rohankatakam/gitranker/internal/batch"
	"github.com/rohankatakam/gitranker/internal/config"
	"github.com/rohankatakam/gitranker/internal/dlq"
	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/jobstore"
	"github.com/rohankatakam/gitranker/internal/metrics"
	"github.com/rohankatakam/gitranker/internal/ranking"
	"github.com/spf13/cobra"
)

var showProgress bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch job",
	Long:  `Run one of the scheduled batch jobs. Each execution is recorded in the job history.`,
}

var runDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Rescore every user, then recompute ranks",
	Long: `Walk the whole population in chunks, refresh each user's activity from
GitHub (full or incremental), rescore them, and finally recompute rank,
percentile and tier for everyone in one statement.

Items that fail are skipped and recorded (see 'ranker failures'). The job
fails once more than batch.skip_limit items are skipped, and the ranking
step is not run.`,
	Args: cobra.NoArgs,
	RunE: runDaily,
}

var runHourlyCmd = &cobra.Command{
	Use:   "hourly",
	Short: "Recompute ranks if users registered in the past hour",
	Args:  cobra.NoArgs,
	RunE:  runHourly,
}

func init() {
	runCmd.AddCommand(runDailyCmd)
	runCmd.AddCommand(runHourlyCmd)

	runDailyCmd.Flags().BoolVar(&showProgress, "progress", true, "Show a progress bar when attached to a terminal")
}

func batchSettings(c config.BatchConfig) batch.Settings {
	return batch.Settings{
		ChunkSize: c.ChunkSize,
		SkipLimit: c.SkipLimit,
		Retry: batch.RetryPolicy{
			MaxAttempts:    c.RetryLimit,
			InitialBackoff: c.BackoffInitial,
			MaxBackoff:     c.BackoffMax,
			Multiplier:     2,
		},
	}
}

func runDaily(cmd *cobra.Command, args []string) error {
	if err := validate(config.ValidationContextRun); err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.logAPIStats()

	jobs, err := jobstore.Open(cfg.Jobs.Path)
	if err != nil {
		return fmt.Errorf("failed to open job history: %w", err)
	}
	defer jobs.Close()

	batchMetrics := metrics.NewBatch()
	cost := batch.NewCostListener()
	listeners := []batch.Listener{
		batch.NewProgressListener(logger, cfg.Batch.ProgressStep),
		cost,
		batch.NewSkipRecorder(dlq.NewQueue(a.store.DB(), logger), batch.DailyJobName, batchMetrics, logger),
	}
	if showProgress && isTerminal(os.Stderr) {
		listeners = append(listeners, batch.NewBarListener(os.Stderr))
	}

	processor := batch.NewScoreProcessor(a.store, a.updater, ranking.NewEngine(a.store), logger)
	scoreStep := batch.NewChunkStep(batch.ScoreStepName, a.store, processor, batch.NewUserWriter(a.store),
		batchSettings(cfg.Batch), logger, listeners...)

	job := batch.NewDailyScoreJob(scoreStep, batch.NewRankingTasklet(a.coordinator))
	exec, err := batch.NewLauncher(jobs, batchMetrics, logger).Run(ctx, job)
	printExecution(exec)
	if err != nil {
		return err
	}
	printf("GitHub API cost: %d points\n", cost.Total())
	return nil
}

func runHourly(cmd *cobra.Command, args []string) error {
	if err := validate(config.ValidationContextRead); err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := jobstore.Open(cfg.Jobs.Path)
	if err != nil {
		return fmt.Errorf("failed to open job history: %w", err)
	}
	defer jobs.Close()

	job := batch.NewHourlyRankingJob(a.store, batch.NewRankingTasklet(a.coordinator), nil)
	exec, err := batch.NewLauncher(jobs, nil, logger).Run(ctx, job)
	printExecution(exec)
	return err
}

// printExecution writes a one-screen summary of exec.
func printExecution(exec *jobstore.JobExecution) {
	if exec == nil {
		return
	}
	printf("\n%s %s  [%s]  %s\n", exec.Name, exec.ID, exec.Status, rankerrors.FormatDuration(exec.Duration()))
	for _, s := range exec.Steps {
		printf("  %-26s %-9s read=%d written=%d skipped=%d retries=%d cost=%d\n",
			s.Name, s.Status, s.Read, s.Written, s.Skipped, s.Retries, s.APICost)
		if s.Error != "" {
			printf("    error: %s\n", s.Error)
		}
	}
}

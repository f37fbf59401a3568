package main

import (
	"os"
	"text/tabwriter"
	"time"

	"github.com/rohankatakam/gitranker/internal/batch"
	"github.com/rohankatakam/gitranker/internal/config"
	"github.com/rohankatakam/gitranker/internal/dlq"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/spf13/cobra"
)

var (
	failuresJob     string
	failuresLimit   int
	failuresPending bool
	failuresPurge   time.Duration
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List items skipped by batch jobs",
	Long: `List users that a batch job skipped, with the error code, phase and how
often they failed. Retryable failures are usually rate limits or timeouts;
the rest are domain failures such as deleted GitHub accounts.

Examples:
  ranker failures
  ranker failures --pending
  ranker failures --purge 720h`,
	Args: cobra.NoArgs,
	RunE: runFailures,
}

func init() {
	failuresCmd.Flags().StringVar(&failuresJob, "job", batch.DailyJobName, "Job name")
	failuresCmd.Flags().IntVarP(&failuresLimit, "limit", "n", 50, "Maximum number of entries")
	failuresCmd.Flags().BoolVar(&failuresPending, "pending", false, "Only show retryable entries below the retry limit")
	failuresCmd.Flags().DurationVar(&failuresPurge, "purge", 0, "Delete entries not updated within this duration")
}

func runFailures(cmd *cobra.Command, args []string) error {
	if err := validate(config.ValidationContextRead); err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	queue := dlq.NewQueue(store.DB(), logger)

	if failuresPurge > 0 {
		n, err := queue.PurgeOld(ctx, failuresPurge)
		if err != nil {
			return err
		}
		printf("Purged %d entries\n", n)
		return nil
	}

	stats, err := queue.GetStats(ctx, failuresJob)
	if err != nil {
		return err
	}
	printf("%s: %d failures (%d retryable, %d domain)\n\n",
		stats.JobName, stats.TotalEntries, stats.RetryableEntries, stats.DomainFailures)

	var failures []models.BatchFailure
	if failuresPending {
		failures, err = queue.GetPendingRetries(ctx, failuresJob, cfg.Batch.RetryLimit)
	} else {
		failures, err = queue.GetRecentFailures(ctx, failuresJob, failuresLimit)
	}
	if err != nil {
		return err
	}
	if len(failures) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	printfTo(w, "USERNAME\tCODE\tPHASE\tRETRYABLE\tCOUNT\tUPDATED\tMESSAGE\n")
	for _, f := range failures {
		printfTo(w, "%s\t%s\t%s\t%t\t%d\t%s\t%s\n",
			f.TargetID, f.ErrorType, f.Phase, f.Retryable, f.RetryCount,
			f.UpdatedAt.Local().Format(time.DateTime), truncate(f.ErrorMessage, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

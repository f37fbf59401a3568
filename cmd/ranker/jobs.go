package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/jobstore"
	"github.com/spf13/cobra"
)

var (
	jobsName  string
	jobsLimit int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect batch job history",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent job executions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one job execution with its steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)

	jobsListCmd.Flags().StringVar(&jobsName, "job", "", "Only list executions of this job")
	jobsListCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "Maximum number of executions")
}

func openJobs() (*jobstore.Store, error) {
	jobs, err := jobstore.Open(cfg.Jobs.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job history: %w", err)
	}
	return jobs, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	jobs, err := openJobs()
	if err != nil {
		return err
	}
	defer jobs.Close()

	execs, err := jobs.List(jobsName, jobsLimit)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		printf("No job executions recorded\n")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	printfTo(w, "ID\tJOB\tSTATUS\tSTARTED\tDURATION\tREAD\tSKIPPED\n")
	for _, e := range execs {
		totals := e.Totals()
		printfTo(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			e.ID, e.Name, e.Status, e.StartedAt.Local().Format(time.DateTime),
			rankerrors.FormatDuration(e.Duration()), totals.Read, totals.Skipped)
	}
	return w.Flush()
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	jobs, err := openJobs()
	if err != nil {
		return err
	}
	defer jobs.Close()

	exec, err := jobs.Get(args[0])
	if errors.Is(err, jobstore.ErrNotFound) {
		return rankerrors.NotFoundf("job execution %s not found", args[0])
	}
	if err != nil {
		return err
	}
	return printYAML(exec)
}

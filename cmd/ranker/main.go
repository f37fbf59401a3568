package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rohankatakam/gitranker/internal/config"
	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logging.Logger
	cfg     *config.Config
)

func main() {
	// SIGINT/SIGTERM cancel the command context. A running batch step
	// finishes its current chunk and stops before the next one.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if logger != nil {
		logger.Close()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

// printError renders the structured form of err with its code and retry hint.
func printError(err error) {
	e := rankerrors.Describe(err)
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", e.Code, err)
	if e.RetryHint != "" {
		fmt.Fprintf(os.Stderr, "  → %s\n", e.RetryHint)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ranker",
	Short: "gitranker - GitHub contribution scoring and ranking",
	Long: `gitranker ingests GitHub contribution history, scores it, and keeps a
global rank, percentile and tier for every tracked user.

Batch jobs are meant to be triggered by an external scheduler:
  ranker run daily    # rescore everyone, then recompute ranks
  ranker run hourly   # recompute ranks if someone registered`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return rankerrors.ConfigErrorf("failed to load config: %v", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(logging.Config{
			Level:      level,
			Format:     logging.Format(cfg.Logging.Format),
			OutputFile: cfg.Logging.File,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .gitranker/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Set custom version template
	rootCmd.SetVersionTemplate(`gitranker {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(failuresCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

package main

import (
	"github.com/rohankatakam/gitranker/internal/batch"
	"github.com/rohankatakam/gitranker/internal/config"
	"github.com/rohankatakam/gitranker/internal/dlq"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/rohankatakam/gitranker/internal/users"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Start tracking a GitHub user",
	Long: `Fetch the user's profile and full contribution history, score it, place
the user in the current ranking and persist them with their snapshots.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <username>",
	Short: "Rescan a tracked user's full history",
	Long: `Run a full scan for one user outside the daily job. A user can be
refreshed at most once every 5 minutes.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

func newUserService(cmd *cobra.Command) (*users.Service, *app, error) {
	if err := validate(config.ValidationContextRegister); err != nil {
		return nil, nil, err
	}
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return nil, nil, err
	}
	return users.NewService(a.store, a.profiles, a.updater, a.coordinator, logger), a, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	svc, a, err := newUserService(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := svc.Register(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	success("Registered %s", user.Username)
	printUser(user)
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	svc, a, err := newUserService(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := svc.Refresh(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	// a successful manual refresh settles the user's daily-job failure
	if err := dlq.NewQueue(a.store.DB(), logger).MarkResolved(cmd.Context(), batch.DailyJobName, user.Username); err != nil {
		logger.WithError(err).Warn("failed to resolve failure entry")
	}
	success("Refreshed %s", user.Username)
	printUser(user)
	return nil
}

func printUser(u *models.User) {
	printf("  Score:      %d\n", u.Score.Int())
	printf("  Rank:       #%d\n", u.RankInfo.Rank)
	printf("  Percentile: %.2f\n", u.RankInfo.Percentile)
	printf("  Tier:       %s\n", u.RankInfo.Tier)
}

package main

import (
	"os"
	"text/tabwriter"

	"github.com/rohankatakam/gitranker/internal/config"
	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/rohankatakam/gitranker/internal/ranking"
	"github.com/spf13/cobra"
)

var (
	boardPage int
	boardTier string
	boardYAML bool
)

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard",
	Aliases: []string{"ranking"},
	Short:   "Show the ranking, one page at a time",
	Long: `Show tracked users ordered by rank, optionally filtered by tier.

Examples:
  ranker leaderboard
  ranker leaderboard --page 3
  ranker leaderboard --tier DIAMOND`,
	Args: cobra.NoArgs,
	RunE: runLeaderboard,
}

func init() {
	leaderboardCmd.Flags().IntVarP(&boardPage, "page", "p", 1, "Page number (1-based)")
	leaderboardCmd.Flags().StringVarP(&boardTier, "tier", "t", "", "Only show users of this tier")
	leaderboardCmd.Flags().BoolVar(&boardYAML, "yaml", false, "Print the page as YAML")
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	var tier *models.Tier
	if boardTier != "" {
		t, err := models.ParseTier(boardTier)
		if err != nil {
			return rankerrors.ValidationErrorf("invalid tier %q", boardTier)
		}
		tier = &t
	}
	if err := validate(config.ValidationContextRead); err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	board := ranking.NewBoard(a.store, a.cache, cfg.Ranking.PageSize, logger)
	page, err := board.Page(cmd.Context(), boardPage, tier)
	if err != nil {
		return err
	}
	if boardYAML {
		return printYAML(page)
	}

	if len(page.Entries) == 0 {
		printf("No ranked users on page %d\n", page.Number)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	printfTo(w, "RANK\tUSERNAME\tSCORE\tPERCENTILE\tTIER\n")
	for _, e := range page.Entries {
		printfTo(w, "%d\t%s\t%d\t%.2f\t%s\n", e.Rank, e.Username, e.Score, e.Percentile, tierLabel(e.Tier))
	}
	w.Flush()
	printf("\nPage %d of %d (%d users)\n", page.Number, page.TotalPages(), page.Total)
	return nil
}

package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/rohankatakam/gitranker/internal/github"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/sirupsen/logrus"
)

// Fetcher is the subset of github.Client the strategies need
type Fetcher interface {
	FetchAllActivities(ctx context.Context, username string, joinedAt time.Time) (*github.ActivityResponse, error)
	FetchYear(ctx context.Context, username string, year int) (*github.ActivityResponse, error)
}

// Result is the outcome of executing a Plan
type Result struct {
	Kind  Kind
	Total models.ActivityStatistics
	// Baseline is the year-end total a Full scan produced for a user who
	// joined before the plan year. Nil otherwise.
	Baseline *models.ActivityStatistics
	Cost     int
	Duration time.Duration
}

// Updater executes plans. It never opens a store transaction, so a slow or
// failing GitHub call holds no lock on persisted state.
type Updater struct {
	fetcher Fetcher
	logger  logrus.FieldLogger
}

// NewUpdater creates an updater on top of fetcher
func NewUpdater(fetcher Fetcher, logger logrus.FieldLogger) *Updater {
	return &Updater{
		fetcher: fetcher,
		logger:  logging.OrDiscard(logger).WithField("component", "activity"),
	}
}

// Execute runs plan for user.
func (u *Updater) Execute(ctx context.Context, user *models.User, plan Plan) (*Result, error) {
	start := time.Now()

	var (
		result *Result
		err    error
	)
	switch plan.Kind {
	case Full:
		result, err = u.full(ctx, user, plan.Year)
	case Incremental:
		result, err = u.incremental(ctx, user, plan)
	default:
		return nil, fmt.Errorf("unknown update strategy %s", plan.Kind)
	}
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	u.logger.WithFields(logrus.Fields{
		"username": user.Username,
		"strategy": result.Kind.String(),
		"cost":     result.Cost,
		"duration": result.Duration.String(),
	}).Debug("activity update complete")
	return result, nil
}

func (u *Updater) full(ctx context.Context, user *models.User, year int) (*Result, error) {
	resp, err := u.fetcher.FetchAllActivities(ctx, user.Username, user.GitHubCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("full scan %s: %w", user.Username, err)
	}

	result := &Result{
		Kind:  Full,
		Total: resp.Statistics(),
		Cost:  resp.TotalCost,
	}
	if !user.GitHubCreatedAt.IsZero() && user.JoinYear() < year {
		baseline := resp.StatisticsUntilYear(year - 1)
		result.Baseline = &baseline
	}
	return result, nil
}

func (u *Updater) incremental(ctx context.Context, user *models.User, plan Plan) (*Result, error) {
	if plan.Baseline == nil {
		return nil, fmt.Errorf("incremental update of %s without baseline", user.Username)
	}

	resp, err := u.fetcher.FetchYear(ctx, user.Username, plan.Year)
	if err != nil {
		return nil, fmt.Errorf("incremental update %s: %w", user.Username, err)
	}

	current := resp.StatisticsUntilYear(plan.Year)
	current.PRMerged = resp.MergedPRs
	return &Result{
		Kind:  Incremental,
		Total: MergeIncremental(plan.Baseline.Stats, current),
		Cost:  resp.TotalCost,
	}, nil
}

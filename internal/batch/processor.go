package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rohankatakam/gitranker/internal/activity"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/rohankatakam/gitranker/internal/storage"
	"github.com/sirupsen/logrus"
)

// SnapshotFinder loads the snapshots the processor diffs against
type SnapshotFinder interface {
	FindSnapshotBefore(ctx context.Context, userID int64, kind models.SnapshotKind, date time.Time) (*models.ActivityLog, error)
}

// Executor runs an activity plan
type Executor interface {
	Execute(ctx context.Context, user *models.User, plan activity.Plan) (*activity.Result, error)
}

// Ranker estimates a rank before the bulk recomputation
type Ranker interface {
	RankFor(ctx context.Context, user *models.User, score models.Score) (models.RankInfo, error)
}

// ScoreProcessor refreshes one user's activity, score and provisional rank.
type ScoreProcessor struct {
	snapshots SnapshotFinder
	updater   Executor
	ranker    Ranker
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewScoreProcessor(snapshots SnapshotFinder, updater Executor, ranker Ranker, logger logrus.FieldLogger) *ScoreProcessor {
	return &ScoreProcessor{
		snapshots: snapshots,
		updater:   updater,
		ranker:    ranker,
		logger:    logging.OrDiscard(logger).WithField("component", "score_processor"),
		now:       time.Now,
	}
}

// SetClock overrides the processing time.
func (p *ScoreProcessor) SetClock(now func() time.Time) {
	p.now = now
}

// Process never mutates user unless it returns OutcomeOk.
func (p *ScoreProcessor) Process(ctx context.Context, user *models.User) Outcome {
	now := p.now().UTC()
	year := now.Year()

	// yesterday or earlier, so a second run on the same day diffs
	// against the same snapshot
	previous, err := p.find(ctx, user.ID, models.SnapshotDaily, models.DateOf(now))
	if err != nil {
		return Retry(fmt.Errorf("load previous snapshot of %s: %w", user.Username, err))
	}
	baseline, err := p.find(ctx, user.ID, models.SnapshotBaseline, models.StartOfYear(year))
	if err != nil {
		return Retry(fmt.Errorf("load baseline of %s: %w", user.Username, err))
	}

	plan := activity.Select(baseline, year)
	result, err := p.updater.Execute(ctx, user, plan)
	if err != nil {
		return Classify(err)
	}

	score, err := result.Total.Score()
	if err != nil {
		return Skip("invalid statistics", fmt.Errorf("score %s: %w", user.Username, err))
	}
	rank, err := p.ranker.RankFor(ctx, user, score)
	if err != nil {
		return Retry(fmt.Errorf("rank %s: %w", user.Username, err))
	}

	oldScore, oldTier := user.Score, user.RankInfo.Tier
	user.UpdateScore(score, now)
	promoted := user.UpdateRank(rank)
	if plan.Kind == activity.Full {
		user.RecordFullScan(now)
	}

	logs := []*models.ActivityLog{models.NewDailyLog(user.ID, now, result.Total, previous)}
	if result.Baseline != nil {
		logs = append(logs, models.NewBaselineLog(user.ID, year, *result.Baseline))
	}

	if score != oldScore {
		logging.Emit(p.logger, logging.EventScoreChanged, logging.Fields{
			"username":  user.Username,
			"old_score": oldScore.Int(),
			"new_score": score.Int(),
			"strategy":  plan.Kind.String(),
		})
	}
	if promoted {
		logging.Emit(p.logger, logging.EventTierPromoted, logging.Fields{
			"username": user.Username,
			"from":     oldTier.String(),
			"to":       rank.Tier.String(),
		})
	}

	return Ok(&Item{User: user, Logs: logs, Cost: result.Cost, Strategy: plan.Kind})
}

func (p *ScoreProcessor) find(ctx context.Context, userID int64, kind models.SnapshotKind, before time.Time) (*models.ActivityLog, error) {
	log, err := p.snapshots.FindSnapshotBefore(ctx, userID, kind, before)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return log, err
}

// Package users registers tracked GitHub accounts and refreshes them on
// demand, outside the scheduled batch jobs.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rohankatakam/gitranker/internal/activity"
	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/github"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/rohankatakam/gitranker/internal/ranking"
	"github.com/rohankatakam/gitranker/internal/storage"
	"github.com/sirupsen/logrus"
)

// ProfileFetcher looks up a GitHub account
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, username string) (*github.UserInfo, error)
}

// Executor runs an activity plan
type Executor interface {
	Execute(ctx context.Context, user *models.User, plan activity.Plan) (*activity.Result, error)
}

// Recalculator triggers a debounced ranking recomputation
type Recalculator interface {
	RecalculateIfNeeded(ctx context.Context) (bool, error)
}

// Service registers and refreshes users
type Service struct {
	store    storage.Store
	profiles ProfileFetcher
	updater  Executor
	engine   *ranking.Engine
	ranking  Recalculator
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewService(store storage.Store, profiles ProfileFetcher, updater Executor, coordinator Recalculator, logger logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		updater:  updater,
		engine:   ranking.NewEngine(store),
		ranking:  coordinator,
		logger:   logging.OrDiscard(logger).WithField("component", "users"),
		now:      time.Now,
	}
}

// SetClock overrides the service time.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func alreadyRegistered(username string) error {
	return rankerrors.Wrap(storage.ErrConflict, rankerrors.ErrorTypeValidation, rankerrors.SeverityLow,
		fmt.Sprintf("user %s is already registered", username)).
		WithCode(rankerrors.CodeUserAlreadyExists)
}

// Register adds username with a full scan and a provisional rank.
func (s *Service) Register(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)

	_, err := s.store.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, alreadyRegistered(username)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("lookup %s: %w", username, err)
	}

	profile, err := s.profiles.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		NodeID:          profile.NodeID,
		Username:        profile.Login,
		ProfileImage:    profile.AvatarURL,
		GitHubCreatedAt: profile.CreatedAt.UTC(),
		RankInfo:        models.InitialRankInfo(),
		CreatedAt:       now,
	}

	result, err := s.updater.Execute(ctx, user, activity.Select(nil, now.Year()))
	if err != nil {
		return nil, err
	}
	score, err := result.Total.Score()
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", user.Username, err)
	}
	rank, err := s.engine.RankForNewUser(ctx, score)
	if err != nil {
		return nil, err
	}
	user.UpdateScore(score, now)
	user.UpdateRank(rank)
	user.RecordFullScan(now)

	logs := []*models.ActivityLog{models.NewDailyLog(0, now, result.Total, nil)}
	if result.Baseline != nil {
		logs = append(logs, models.NewBaselineLog(0, now.Year(), *result.Baseline))
	}
	if err := s.store.CreateUser(ctx, user, logs...); err != nil {
		if storage.IsConflict(err) {
			return nil, alreadyRegistered(user.Username)
		}
		return nil, err
	}

	logging.Emit(s.logger, logging.EventUserRegistered, logging.Fields{
		"username": user.Username,
		"score":    user.Score.Int(),
		"rank":     user.RankInfo.Rank,
		"tier":     user.RankInfo.Tier.String(),
		"cost":     result.Cost,
	})
	s.recalculate(ctx)
	return user, nil
}

// Refresh rescans username now. It fails with FULL_SCAN_COOLDOWN when the
// previous full scan is too recent.
func (s *Service) Refresh(ctx context.Context, username string) (*models.User, error) {
	user, err := s.store.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, rankerrors.NotFoundf("user %s is not registered", username)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", username, err)
	}

	now := s.now().UTC()
	if !user.CanTriggerFullScan(now) {
		next := user.NextFullScanAvailableAt()
		return nil, rankerrors.New(rankerrors.ErrorTypeValidation, rankerrors.SeverityLow,
			fmt.Sprintf("full scan of %s available at %s", user.Username, next.Format(time.RFC3339))).
			WithCode(rankerrors.CodeFullScanCooldown).
			WithRetryAfter(next.Sub(now))
	}

	year := now.Year()
	result, err := s.updater.Execute(ctx, user, activity.Select(nil, year))
	if err != nil {
		return nil, err
	}
	score, err := result.Total.Score()
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", user.Username, err)
	}

	previous, err := s.findSnapshot(ctx, user.ID, models.SnapshotDaily, models.DateOf(now))
	if err != nil {
		return nil, err
	}
	rank, err := s.engine.RankFor(ctx, user, score)
	if err != nil {
		return nil, err
	}

	oldScore := user.Score
	user.UpdateScore(score, now)
	user.UpdateRank(rank)
	user.RecordFullScan(now)

	logs := []*models.ActivityLog{models.NewDailyLog(user.ID, now, result.Total, previous)}
	if result.Baseline != nil {
		stale, err := s.baselineIsStale(ctx, user.ID, year, *result.Baseline)
		if err != nil {
			return nil, err
		}
		if stale {
			logs = append(logs, models.NewBaselineLog(user.ID, year, *result.Baseline))
		}
	}
	if err := s.store.SaveBatch(ctx, []*models.User{user}, logs); err != nil {
		return nil, fmt.Errorf("save %s: %w", user.Username, err)
	}

	logging.Emit(s.logger, logging.EventUserRefreshed, logging.Fields{
		"username":  user.Username,
		"old_score": oldScore.Int(),
		"new_score": score.Int(),
		"cost":      result.Cost,
	})
	s.recalculate(ctx)
	return user, nil
}

func (s *Service) findSnapshot(ctx context.Context, userID int64, kind models.SnapshotKind, before time.Time) (*models.ActivityLog, error) {
	log, err := s.store.FindSnapshotBefore(ctx, userID, kind, before)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s snapshot: %w", kind, err)
	}
	return log, nil
}

func (s *Service) baselineIsStale(ctx context.Context, userID int64, year int, stats models.ActivityStatistics) (bool, error) {
	current, err := s.store.FindSnapshotOn(ctx, userID, models.SnapshotBaseline, models.BaselineDate(year))
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load baseline: %w", err)
	}
	return current.Stats != stats, nil
}

// recalculate is best effort; the scheduled jobs recompute anyway.
func (s *Service) recalculate(ctx context.Context) {
	if s.ranking == nil {
		return
	}
	if _, err := s.ranking.RecalculateIfNeeded(ctx); err != nil {
		s.logger.WithError(err).Warn("ranking recalculation failed")
	}
}

// Package ranking assigns rank, percentile and tier to users, either one at
// a time against the current population or in bulk through the store.
package ranking

import (
	"context"
	"fmt"

	"github.com/rohankatakam/gitranker/internal/models"
)

// Counter is the read side of the store the engine ranks against
type Counter interface {
	CountAll(ctx context.Context) (int64, error)
	CountWhereScoreGreaterThan(ctx context.Context, score models.Score) (int64, error)
}

// Engine computes incremental RankInfo for single users
type Engine struct {
	store Counter
}

// NewEngine creates an engine over store
func NewEngine(store Counter) *Engine {
	return &Engine{store: store}
}

// RankFor ranks an already stored user at a new score. The user's stored
// row still carries the previous score, so it is excluded from the count
// of higher scores when that previous score was above the new one.
func (e *Engine) RankFor(ctx context.Context, user *models.User, score models.Score) (models.RankInfo, error) {
	if user.ID == 0 {
		return e.RankForNewUser(ctx, score)
	}

	higher, err := e.store.CountWhereScoreGreaterThan(ctx, score)
	if err != nil {
		return models.RankInfo{}, fmt.Errorf("count higher scores: %w", err)
	}
	total, err := e.store.CountAll(ctx)
	if err != nil {
		return models.RankInfo{}, fmt.Errorf("count users: %w", err)
	}
	if user.Score > score && higher > 0 {
		higher--
	}
	return models.ComputeRankInfo(higher, total, score)
}

// RankForNewUser ranks a user who is not stored yet, counting them in the
// population.
func (e *Engine) RankForNewUser(ctx context.Context, score models.Score) (models.RankInfo, error) {
	higher, err := e.store.CountWhereScoreGreaterThan(ctx, score)
	if err != nil {
		return models.RankInfo{}, fmt.Errorf("count higher scores: %w", err)
	}
	total, err := e.store.CountAll(ctx)
	if err != nil {
		return models.RankInfo{}, fmt.Errorf("count users: %w", err)
	}
	return models.ComputeRankInfo(higher, total+1, score)
}

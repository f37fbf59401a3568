package batch

import (
	"context"
	"fmt"
	"time"

	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/jobstore"
)

// Recalculator recomputes every rank unconditionally
type Recalculator interface {
	Force(ctx context.Context) (int64, error)
}

// RankingTasklet is a single-call step that recomputes all ranks
type RankingTasklet struct {
	name        string
	coordinator Recalculator
}

func NewRankingTasklet(coordinator Recalculator) *RankingTasklet {
	return &RankingTasklet{name: RankingStepName, coordinator: coordinator}
}

func (t *RankingTasklet) Name() string { return t.name }

func (t *RankingTasklet) Execute(ctx context.Context) (jobstore.StepExecution, error) {
	start := time.Now()
	exec := jobstore.StepExecution{Name: t.name}

	rows, err := t.coordinator.Force(ctx)
	exec.Duration = time.Since(start)
	if err != nil {
		exec.Status = jobstore.StatusFailed
		exec.Error = err.Error()
		return exec, rankerrors.BatchError(err, rankerrors.CodeBatchStepFailed, fmt.Sprintf("step %s failed", t.name))
	}

	exec.Status = jobstore.StatusCompleted
	exec.Written = int(rows)
	return exec, nil
}

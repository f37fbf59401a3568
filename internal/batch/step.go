package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/jobstore"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/rohankatakam/gitranker/internal/storage"
	"github.com/sirupsen/logrus"
)

// Step is one unit of a job
type Step interface {
	Name() string
	Execute(ctx context.Context) (jobstore.StepExecution, error)
}

// Reader pages users ordered by id
type Reader interface {
	CountAll(ctx context.Context) (int64, error)
	ListUsers(ctx context.Context, afterID int64, limit int) ([]*models.User, error)
}

// Processor turns a user into a writable item
type Processor interface {
	Process(ctx context.Context, user *models.User) Outcome
}

// Writer persists a chunk of items in one transaction
type Writer interface {
	Write(ctx context.Context, items []*Item) error
}

// ChunkStep reads users in chunks, processes them one at a time and writes
// each chunk at once.
type ChunkStep struct {
	name      string
	reader    Reader
	processor Processor
	writer    Writer
	settings  Settings
	listeners []Listener
	logger    logrus.FieldLogger
	sleep     func(time.Duration)
}

// NewChunkStep creates a chunk-oriented step
func NewChunkStep(name string, reader Reader, processor Processor, writer Writer, settings Settings, logger logrus.FieldLogger, listeners ...Listener) *ChunkStep {
	return &ChunkStep{
		name:      name,
		reader:    reader,
		processor: processor,
		writer:    writer,
		settings:  settings.withDefaults(),
		listeners: listeners,
		logger:    logging.OrDiscard(logger).WithField("step", name),
		sleep:     time.Sleep,
	}
}

func (s *ChunkStep) Name() string { return s.name }

// Execute runs the step to completion. Cancellation of ctx is honored
// between chunks; an item in flight always finishes.
func (s *ChunkStep) Execute(ctx context.Context) (jobstore.StepExecution, error) {
	start := time.Now()
	exec := jobstore.StepExecution{Name: s.name, Status: jobstore.StatusStarted}

	total, err := s.reader.CountAll(ctx)
	if err != nil {
		return s.fail(exec, start, fmt.Errorf("count users: %w", err))
	}
	for _, l := range s.listeners {
		l.BeforeStep(s.name, total)
	}

	itemCtx := context.WithoutCancel(ctx)
	var (
		afterID   int64
		processed int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return s.fail(exec, start, fmt.Errorf("interrupted after %d users: %w", processed, err))
		}

		users, err := s.reader.ListUsers(ctx, afterID, s.settings.ChunkSize)
		if err != nil {
			return s.fail(exec, start, fmt.Errorf("read chunk after id %d: %w", afterID, err))
		}
		if len(users) == 0 {
			break
		}
		afterID = users[len(users)-1].ID
		exec.Read += len(users)

		items := make([]*Item, 0, len(users))
		chunkCost := 0
		for _, user := range users {
			outcome, retries := s.process(itemCtx, user)
			exec.Retries += retries

			switch outcome.Kind {
			case OutcomeOk:
				items = append(items, outcome.Item)
				chunkCost += outcome.Item.Cost
			case OutcomeSkip:
				skipped := SkippedItem{User: user, Phase: models.PhaseProcess, Err: outcome.Err, Retryable: outcome.Retryable}
				if err := s.skip(itemCtx, &exec, skipped); err != nil {
					return s.fail(exec, start, err)
				}
			case OutcomeAbort:
				return s.fail(exec, start, fmt.Errorf("aborted at %s: %w", user.Username, outcome.Err))
			}
		}

		if err := s.write(itemCtx, items, &exec); err != nil {
			return s.fail(exec, start, err)
		}
		exec.APICost += chunkCost
		processed += int64(len(users))

		progress := Progress{Processed: processed, Total: total, ChunkCost: chunkCost}
		for _, l := range s.listeners {
			l.AfterChunk(s.name, progress)
		}
	}

	exec.Status = jobstore.StatusCompleted
	exec.Duration = time.Since(start)
	for _, l := range s.listeners {
		l.AfterStep(s.name, exec)
	}
	s.logger.WithFields(logrus.Fields{
		"read":     exec.Read,
		"written":  exec.Written,
		"skipped":  exec.Skipped,
		"cost":     exec.APICost,
		"duration": exec.Duration.String(),
	}).Info("step completed")
	return exec, nil
}

// process retries an item per the retry policy and reports how many
// retries it used. Exhausting the attempts turns the item into a
// retryable skip.
func (s *ChunkStep) process(ctx context.Context, user *models.User) (Outcome, int) {
	policy := s.settings.Retry
	for attempt := 1; ; attempt++ {
		outcome := s.processor.Process(ctx, user)
		if outcome.Kind != OutcomeRetry {
			return outcome, attempt - 1
		}
		if attempt >= policy.MaxAttempts {
			return Outcome{
				Kind:      OutcomeSkip,
				Reason:    "retries exhausted",
				Err:       outcome.Err,
				Retryable: true,
			}, attempt - 1
		}

		wait := policy.Backoff(attempt)
		s.logger.WithError(outcome.Err).WithFields(logrus.Fields{
			"username": user.Username,
			"attempt":  attempt,
			"backoff":  wait.String(),
		}).Debug("retrying item")
		s.sleep(wait)
	}
}

func (s *ChunkStep) skip(ctx context.Context, exec *jobstore.StepExecution, item SkippedItem) error {
	exec.Skipped++
	for _, l := range s.listeners {
		l.OnSkip(ctx, s.name, item)
	}
	if exec.Skipped > s.settings.SkipLimit {
		return fmt.Errorf("skip limit %d exceeded: %w", s.settings.SkipLimit, item.Err)
	}
	return nil
}

// write saves the chunk. If the chunk transaction fails, items are written
// one by one so a single bad row only skips itself.
func (s *ChunkStep) write(ctx context.Context, items []*Item, exec *jobstore.StepExecution) error {
	if len(items) == 0 {
		return nil
	}
	err := s.writer.Write(ctx, items)
	if err == nil {
		exec.Written += len(items)
		return nil
	}

	s.logger.WithError(err).WithField("items", len(items)).Warn("chunk write failed, writing items individually")
	for _, item := range items {
		if err := s.writer.Write(ctx, []*Item{item}); err != nil {
			skipped := SkippedItem{
				User:      item.User,
				Phase:     models.PhaseWrite,
				Err:       err,
				Retryable: !errors.Is(err, storage.ErrNotFound),
			}
			if err := s.skip(ctx, exec, skipped); err != nil {
				return err
			}
			continue
		}
		exec.Written++
	}
	return nil
}

func (s *ChunkStep) fail(exec jobstore.StepExecution, start time.Time, err error) (jobstore.StepExecution, error) {
	exec.Status = jobstore.StatusFailed
	exec.Error = err.Error()
	exec.Duration = time.Since(start)
	for _, l := range s.listeners {
		l.AfterStep(s.name, exec)
	}
	return exec, rankerrors.BatchError(err, rankerrors.CodeBatchStepFailed, fmt.Sprintf("step %s failed", s.name))
}

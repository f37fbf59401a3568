package ranking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the cooling-down window after a recomputation.
const DefaultDebounce = 5 * time.Minute

// Recomputer performs the atomic set-based ranking update
type Recomputer interface {
	BulkRecomputeRanking(ctx context.Context, now time.Time) (int64, error)
}

// Invalidator drops cached ranking views
type Invalidator interface {
	InvalidateRankings(ctx context.Context) error
}

// State of the coordinator
type State int

const (
	StateIdle State = iota
	StateCoolingDown
)

func (s State) String() string {
	if s == StateCoolingDown {
		return "cooling-down"
	}
	return "idle"
}

// Coordinator debounces bulk ranking recomputation and lets one caller per
// window through. The check and the recomputation share one critical
// section.
type Coordinator struct {
	mu          sync.Mutex
	store       Recomputer
	invalidator Invalidator
	debounce    time.Duration
	now         func() time.Time
	logger      logrus.FieldLogger

	lastRun time.Time
	hasRun  bool
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithClock replaces time.Now. time.Now readings carry a monotonic clock,
// which is what the window comparison uses.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithInvalidator sets the cache invalidated after each recomputation.
func WithInvalidator(inv Invalidator) CoordinatorOption {
	return func(c *Coordinator) { c.invalidator = inv }
}

// WithLogger sets the coordinator logger.
func WithLogger(logger logrus.FieldLogger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logging.OrDiscard(logger) }
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(store Recomputer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:    store,
		debounce: DefaultDebounce,
		now:      time.Now,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "ranking")
	return c
}

func (c *Coordinator) stateLocked(now time.Time) State {
	if c.hasRun && now.Sub(c.lastRun) < c.debounce {
		return StateCoolingDown
	}
	return StateIdle
}

// RecalculateIfNeeded recomputes the ranking unless a recomputation ran
// within the debounce window. It reports whether it executed.
func (c *Coordinator) RecalculateIfNeeded(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.stateLocked(now) == StateCoolingDown {
		c.logger.WithField("next_at", c.lastRun.Add(c.debounce).Format(time.RFC3339)).
			Debug("ranking recalculation skipped, cooling down")
		return false, nil
	}
	if _, err := c.runLocked(ctx, now, "debounced"); err != nil {
		return false, err
	}
	return true, nil
}

// Force recomputes regardless of the window and restarts it. It returns
// the number of rows updated.
func (c *Coordinator) Force(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runLocked(ctx, c.now(), "forced")
}

func (c *Coordinator) runLocked(ctx context.Context, now time.Time, trigger string) (int64, error) {
	start := time.Now()
	rows, err := c.store.BulkRecomputeRanking(ctx, now.UTC())
	if err != nil {
		// stays idle so the next caller retries
		return 0, fmt.Errorf("bulk recompute ranking: %w", err)
	}
	c.lastRun = now
	c.hasRun = true

	if c.invalidator != nil {
		if err := c.invalidator.InvalidateRankings(ctx); err != nil {
			c.logger.WithError(err).Warn("ranking cache invalidation failed")
		}
	}

	logging.Emit(c.logger, logging.EventRankingRecalculated, logging.Fields{
		"trigger":  trigger,
		"rows":     rows,
		"duration": time.Since(start).String(),
	})
	return rows, nil
}

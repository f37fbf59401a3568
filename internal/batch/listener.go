package batch

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/jobstore"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/metrics"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Progress is reported after every chunk
type Progress struct {
	Processed int64
	Total     int64
	ChunkCost int
}

// Percent of Total processed, capped at 100.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return math.Min(100, float64(p.Processed)*100/float64(p.Total))
}

// SkippedItem describes an item the step gave up on
type SkippedItem struct {
	User      *models.User
	Phase     models.BatchPhase
	Err       error
	Retryable bool
}

// Listener observes a chunk step
type Listener interface {
	BeforeStep(step string, total int64)
	AfterChunk(step string, progress Progress)
	OnSkip(ctx context.Context, step string, item SkippedItem)
	AfterStep(step string, exec jobstore.StepExecution)
}

// NopListener can be embedded to implement only some callbacks
type NopListener struct{}

func (NopListener) BeforeStep(string, int64) {}
func (NopListener) AfterChunk(string, Progress) {}
func (NopListener) OnSkip(context.Context, string, SkippedItem) {}
func (NopListener) AfterStep(string, jobstore.StepExecution) {}

// ProgressListener logs BATCH_PROGRESS each time another Step percent of
// the items is done.
type ProgressListener struct {
	NopListener
	logger logrus.FieldLogger
	step   float64
	next   float64
}

// NewProgressListener reports every stepPercent (10 if <= 0).
func NewProgressListener(logger logrus.FieldLogger, stepPercent float64) *ProgressListener {
	if stepPercent <= 0 {
		stepPercent = 10
	}
	return &ProgressListener{logger: logging.OrDiscard(logger), step: stepPercent, next: stepPercent}
}

func (l *ProgressListener) BeforeStep(string, int64) {
	l.next = l.step
}

func (l *ProgressListener) AfterChunk(step string, p Progress) {
	pct := p.Percent()
	if pct < l.next {
		return
	}
	reached := math.Floor(pct/l.step) * l.step
	l.next = reached + l.step
	logging.Emit(l.logger, logging.EventBatchProgress, logging.Fields{
		"step":      step,
		"percent":   reached,
		"processed": p.Processed,
		"total":     p.Total,
	})
}

// CostListener accumulates GraphQL cost across steps
type CostListener struct {
	NopListener
	mu    sync.Mutex
	total int
	steps map[string]int
}

func NewCostListener() *CostListener {
	return &CostListener{steps: make(map[string]int)}
}

func (l *CostListener) AfterChunk(step string, p Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total += p.ChunkCost
	l.steps[step] += p.ChunkCost
}

// Total cost seen so far.
func (l *CostListener) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Step returns the cost of one step.
func (l *CostListener) Step(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.steps[name]
}

// FailureSink persists skipped items
type FailureSink interface {
	Enqueue(ctx context.Context, f models.BatchFailure) error
}

// SkipRecorder writes skipped items to the failure log. Domain failures
// (unknown users, rejected logins) are expected and logged quietly.
type SkipRecorder struct {
	NopListener
	sink    FailureSink
	job     string
	metrics *metrics.Batch
	logger  logrus.FieldLogger
}

// NewSkipRecorder records skips of job into sink. m may be nil.
func NewSkipRecorder(sink FailureSink, job string, m *metrics.Batch, logger logrus.FieldLogger) *SkipRecorder {
	return &SkipRecorder{sink: sink, job: job, metrics: m, logger: logging.OrDiscard(logger)}
}

func (r *SkipRecorder) OnSkip(ctx context.Context, step string, item SkippedItem) {
	if r.metrics != nil {
		r.metrics.RecordItemSkipped()
	}

	code := rankerrors.GetCode(item.Err)
	fields := logging.Fields{
		"job":       r.job,
		"step":      step,
		"username":  item.User.Username,
		"phase":     string(item.Phase),
		"code":      string(code),
		"retryable": item.Retryable,
	}
	if item.Retryable {
		logging.EmitWarn(r.logger.WithError(item.Err), logging.EventBatchItemSkipped, fields)
	} else {
		logging.Emit(r.logger.WithError(item.Err), logging.EventBatchItemSkipped, fields)
	}

	if r.sink == nil {
		return
	}
	msg := ""
	if item.Err != nil {
		msg = item.Err.Error()
	}
	err := r.sink.Enqueue(ctx, models.BatchFailure{
		JobName:      r.job,
		TargetID:     item.User.Username,
		ErrorType:    string(code),
		ErrorMessage: msg,
		Phase:        item.Phase,
		Retryable:    item.Retryable,
	})
	if err != nil {
		r.logger.WithError(err).WithField("username", item.User.Username).Warn("failed to record skipped item")
	}
}

// BarListener renders an interactive progress bar
type BarListener struct {
	NopListener
	out io.Writer
	bar *progressbar.ProgressBar
}

func NewBarListener(out io.Writer) *BarListener {
	return &BarListener{out: out}
}

func (l *BarListener) BeforeStep(step string, total int64) {
	l.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(step),
		progressbar.OptionSetWriter(l.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			io.WriteString(l.out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (l *BarListener) AfterChunk(step string, p Progress) {
	if l.bar != nil {
		_ = l.bar.Set64(min(p.Processed, p.Total))
	}
}

func (l *BarListener) AfterStep(string, jobstore.StepExecution) {
	if l.bar != nil {
		_ = l.bar.Finish()
	}
}

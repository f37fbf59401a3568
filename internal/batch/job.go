package batch

import (
	"context"
	"fmt"
	"time"

	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/jobstore"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	DailyJobName    = "dailyScoreRecalculationJob"
	HourlyJobName   = "hourlyRankingJob"
	ScoreStepName   = "scoreRecalculationStep"
	RankingStepName = "rankingRecalculationStep"
)

// Gate decides whether a job has work to do. A false result finishes the
// execution as NOOP.
type Gate func(ctx context.Context) (bool, error)

// Job is an ordered list of steps. A failed step stops the job.
type Job struct {
	Name  string
	Steps []Step
	Gate  Gate
}

// NewDailyScoreJob refreshes every user and then recomputes all ranks.
func NewDailyScoreJob(scoreStep, rankingStep Step) *Job {
	return &Job{Name: DailyJobName, Steps: []Step{scoreStep, rankingStep}}
}

// CreatedCounter counts recently registered users
type CreatedCounter interface {
	CountCreatedAfter(ctx context.Context, t time.Time) (int64, error)
}

// NewHourlyRankingJob recomputes ranks only if someone registered during
// the past hour.
func NewHourlyRankingJob(counter CreatedCounter, rankingStep Step, now func() time.Time) *Job {
	if now == nil {
		now = time.Now
	}
	return &Job{
		Name:  HourlyJobName,
		Steps: []Step{rankingStep},
		Gate: func(ctx context.Context) (bool, error) {
			n, err := counter.CountCreatedAfter(ctx, now().UTC().Add(-time.Hour))
			if err != nil {
				return false, fmt.Errorf("count new users: %w", err)
			}
			return n > 0, nil
		},
	}
}

// Recorder persists executions
type Recorder interface {
	Save(exec *jobstore.JobExecution) error
}

// Launcher runs jobs and records their executions
type Launcher struct {
	recorder Recorder
	metrics  *metrics.Batch
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewLauncher creates a launcher. recorder and m may be nil.
func NewLauncher(recorder Recorder, m *metrics.Batch, logger logrus.FieldLogger) *Launcher {
	if m == nil {
		m = metrics.NewBatch()
	}
	return &Launcher{
		recorder: recorder,
		metrics:  m,
		logger:   logging.OrDiscard(logger).WithField("component", "batch"),
		now:      time.Now,
	}
}

// Metrics returns the counters the launcher updates
func (l *Launcher) Metrics() *metrics.Batch {
	return l.metrics
}

// Run executes job. The returned execution is never nil.
func (l *Launcher) Run(ctx context.Context, job *Job) (*jobstore.JobExecution, error) {
	exec := jobstore.NewExecution(job.Name, l.now())
	log := l.logger.WithFields(logrus.Fields{"job": job.Name, "execution_id": exec.ID})
	l.save(log, exec)

	logging.Emit(log, logging.EventBatchStarted, logging.Fields{"steps": len(job.Steps)})

	if job.Gate != nil {
		run, err := job.Gate(ctx)
		if err != nil {
			return exec, l.failed(log, exec, err)
		}
		if !run {
			exec.Finish(jobstore.StatusNoop, l.now(), nil)
			l.save(log, exec)
			logging.Emit(log, logging.EventBatchCompleted, logging.Fields{"status": string(exec.Status)})
			return exec, nil
		}
	}

	for _, step := range job.Steps {
		stepExec, err := step.Execute(ctx)
		exec.Steps = append(exec.Steps, stepExec)
		if err != nil {
			return exec, l.failed(log, exec, err)
		}
	}

	exec.Finish(jobstore.StatusCompleted, l.now(), nil)
	l.save(log, exec)

	totals := exec.Totals()
	l.metrics.RecordJobCompleted()
	l.metrics.RecordItemProcessed(totals.Read)
	l.metrics.ObserveJobDuration(job.Name, exec.Duration())

	logging.Emit(log, logging.EventBatchCompleted, logging.Fields{
		"status":   string(exec.Status),
		"read":     totals.Read,
		"written":  totals.Written,
		"skipped":  totals.Skipped,
		"retries":  totals.Retries,
		"cost":     totals.APICost,
		"duration": exec.Duration().String(),
	})
	return exec, nil
}

func (l *Launcher) failed(log logrus.FieldLogger, exec *jobstore.JobExecution, err error) error {
	jobErr := rankerrors.BatchError(err, rankerrors.CodeBatchJobFailed, fmt.Sprintf("job %s failed", exec.Name))
	exec.Finish(jobstore.StatusFailed, l.now(), jobErr)
	l.save(log, exec)

	l.metrics.RecordJobFailed()
	l.metrics.RecordItemProcessed(exec.Totals().Read)
	l.metrics.ObserveJobDuration(exec.Name, exec.Duration())

	logging.EmitWarn(log.WithError(err), logging.EventBatchCompleted, logging.Fields{
		"status":   string(exec.Status),
		"duration": exec.Duration().String(),
	})
	return jobErr
}

// save is best effort; history must not fail a job.
func (l *Launcher) save(log logrus.FieldLogger, exec *jobstore.JobExecution) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.Save(exec); err != nil {
		log.WithError(err).Warn("failed to record job execution")
	}
}

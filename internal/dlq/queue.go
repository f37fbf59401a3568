// Package dlq persists batch items that were skipped, keyed by job and
// target, so they can be inspected and retried after the run.
package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/sirupsen/logrus"
)

// Queue manages failed batch items
type Queue struct {
	db     *sqlx.DB
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewQueue creates a new DLQ manager over the store's database. The
// batch_failures table is created by the store's migration.
func NewQueue(db *sqlx.DB, logger logrus.FieldLogger) *Queue {
	return &Queue{
		db:     db,
		logger: logging.OrDiscard(logger).WithField("component", "dlq"),
		now:    time.Now,
	}
}

type failureRow struct {
	ID           int64     `db:"id"`
	JobName      string    `db:"job_name"`
	TargetID     string    `db:"target_id"`
	ErrorType    string    `db:"error_type"`
	ErrorMessage string    `db:"error_message"`
	Phase        string    `db:"phase"`
	Retryable    bool      `db:"retryable"`
	RetryCount   int       `db:"retry_count"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r failureRow) toModel() models.BatchFailure {
	return models.BatchFailure{
		ID:           r.ID,
		JobName:      r.JobName,
		TargetID:     r.TargetID,
		ErrorType:    r.ErrorType,
		ErrorMessage: r.ErrorMessage,
		Phase:        models.BatchPhase(r.Phase),
		Retryable:    r.Retryable,
		RetryCount:   r.RetryCount,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

const failureColumns = `id, job_name, target_id, error_type, error_message, phase,
	retryable, retry_count, created_at, updated_at`

// Enqueue records a failed item. If the item already failed in the same
// job, retry_count is incremented and the error replaced.
func (q *Queue) Enqueue(ctx context.Context, f models.BatchFailure) error {
	now := q.now().UTC()
	msg := models.TruncateMessage(f.ErrorMessage)

	_, err := q.db.ExecContext(ctx, q.db.Rebind(`
		INSERT INTO batch_failures (job_name, target_id, error_type, error_message, phase,
			retryable, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (job_name, target_id) DO UPDATE
		SET retry_count = batch_failures.retry_count + 1,
		    error_type = EXCLUDED.error_type,
		    error_message = EXCLUDED.error_message,
		    phase = EXCLUDED.phase,
		    retryable = EXCLUDED.retryable,
		    updated_at = EXCLUDED.updated_at
	`), f.JobName, f.TargetID, f.ErrorType, msg, string(f.Phase), f.Retryable, now, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue batch failure: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"job":        f.JobName,
		"target_id":  f.TargetID,
		"error_type": f.ErrorType,
		"phase":      string(f.Phase),
	}).Warn("batch item enqueued to DLQ")
	return nil
}

// GetPendingRetries returns retryable failures of job tried fewer than
// maxRetries times, oldest first.
func (q *Queue) GetPendingRetries(ctx context.Context, job string, maxRetries int) ([]models.BatchFailure, error) {
	return q.query(ctx, `WHERE job_name = ? AND retryable = ? AND retry_count < ? ORDER BY created_at ASC`,
		job, true, maxRetries)
}

// GetRecentFailures returns the most recently updated failures. An empty
// job matches every job.
func (q *Queue) GetRecentFailures(ctx context.Context, job string, limit int) ([]models.BatchFailure, error) {
	if job == "" {
		return q.query(ctx, `ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	}
	return q.query(ctx, `WHERE job_name = ? ORDER BY updated_at DESC, id DESC LIMIT ?`, job, limit)
}

func (q *Queue) query(ctx context.Context, clause string, args ...interface{}) ([]models.BatchFailure, error) {
	var rows []failureRow
	query := q.db.Rebind(`SELECT ` + failureColumns + ` FROM batch_failures ` + clause)
	if err := q.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query DLQ: %w", err)
	}
	out := make([]models.BatchFailure, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// MarkResolved removes an item from the DLQ after a successful retry
func (q *Queue) MarkResolved(ctx context.Context, job, targetID string) error {
	result, err := q.db.ExecContext(ctx, q.db.Rebind(`
		DELETE FROM batch_failures WHERE job_name = ? AND target_id = ?
	`), job, targetID)
	if err != nil {
		return fmt.Errorf("failed to delete DLQ entry: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		q.logger.WithFields(logrus.Fields{"job": job, "target_id": targetID}).
			Info("batch item resolved and removed from DLQ")
	}
	return nil
}

// Stats contains DLQ statistics
type Stats struct {
	JobName          string `json:"job_name" yaml:"job_name"`
	TotalEntries     int    `json:"total" yaml:"total"`
	RetryableEntries int    `json:"retryable" yaml:"retryable"`
	DomainFailures   int    `json:"domain_failures" yaml:"domain_failures"`
}

// GetStats returns DLQ statistics for a job
func (q *Queue) GetStats(ctx context.Context, job string) (*Stats, error) {
	stats := Stats{JobName: job}
	err := q.db.QueryRowxContext(ctx, q.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE retryable) AS retryable,
			COUNT(*) FILTER (WHERE NOT retryable) AS domain_failures
		FROM batch_failures
		WHERE job_name = ?
	`), job).Scan(&stats.TotalEntries, &stats.RetryableEntries, &stats.DomainFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to get DLQ stats: %w", err)
	}
	return &stats, nil
}

// PurgeOld removes DLQ entries older than the specified duration
func (q *Queue) PurgeOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := q.now().UTC().Add(-olderThan)

	result, err := q.db.ExecContext(ctx, q.db.Rebind(`DELETE FROM batch_failures WHERE updated_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old DLQ entries: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		q.logger.WithFields(logrus.Fields{
			"count":      rows,
			"older_than": olderThan.String(),
		}).Info("purged old DLQ entries")
	}
	return int(rows), nil
}

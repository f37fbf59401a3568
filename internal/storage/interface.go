package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rohankatakam/gitranker/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store defines the storage interface
type Store interface {
	// User operations
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	// CreateUser inserts user, sets its ID, and saves logs for it in the
	// same transaction.
	CreateUser(ctx context.Context, user *models.User, logs ...*models.ActivityLog) error
	// ListUsers pages users ordered by id, starting after afterID.
	ListUsers(ctx context.Context, afterID int64, limit int) ([]*models.User, error)

	// Counting
	CountAll(ctx context.Context) (int64, error)
	CountWhereScoreGreaterThan(ctx context.Context, score models.Score) (int64, error)
	CountCreatedAfter(ctx context.Context, t time.Time) (int64, error)

	// SaveBatch writes users and snapshots in one transaction.
	SaveBatch(ctx context.Context, users []*models.User, logs []*models.ActivityLog) error

	// Ranking operations
	BulkRecomputeRanking(ctx context.Context, now time.Time) (int64, error)
	ListRanking(ctx context.Context, tier *models.Tier, offset, limit int) ([]*models.User, error)
	CountRanking(ctx context.Context, tier *models.Tier) (int64, error)

	// Snapshot operations
	FindLatestSnapshot(ctx context.Context, userID int64, kind models.SnapshotKind) (*models.ActivityLog, error)
	// FindSnapshotBefore returns the latest snapshot of kind dated strictly
	// before date.
	FindSnapshotBefore(ctx context.Context, userID int64, kind models.SnapshotKind, date time.Time) (*models.ActivityLog, error)
	FindSnapshotOn(ctx context.Context, userID int64, kind models.SnapshotKind, date time.Time) (*models.ActivityLog, error)
	// SaveSnapshot inserts log or replaces the row for the same user, date
	// and kind.
	SaveSnapshot(ctx context.Context, log *models.ActivityLog) error

	// Migrate creates missing tables and indexes.
	Migrate(ctx context.Context) error

	// Close connection
	Close() error
}

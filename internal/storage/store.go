package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/sirupsen/logrus"
)

// sqlStore implements Store over any sqlx driver. Queries are written with
// ? placeholders and rebound for the driver.
type sqlStore struct {
	db      *sqlx.DB
	dialect Dialect
	logger  logrus.FieldLogger
}

// DB exposes the underlying handle for components sharing the database.
func (s *sqlStore) DB() *sqlx.DB {
	return s.db
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range Schema(s.dialect) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	s.logger.WithField("dialect", string(s.dialect)).Debug("schema up to date")
	return nil
}

// User operations

func (s *sqlStore) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	var row userRow
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.toModel()
}

func (s *sqlStore) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *sqlStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

const insertUserQuery = `
	INSERT INTO users (node_id, username, profile_image, github_created_at, total_score,
		ranking, percentile, tier, last_full_scan_at, created_at, updated_at)
	VALUES (:node_id, :username, :profile_image, :github_created_at, :total_score,
		:ranking, :percentile, :tier, :last_full_scan_at, :created_at, :updated_at)
	RETURNING id
`

func (s *sqlStore) CreateUser(ctx context.Context, user *models.User, logs ...*models.ActivityLog) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := tx.BindNamed(insertUserQuery, newUserRow(user))
	if err != nil {
		return fmt.Errorf("bind user insert: %w", err)
	}
	var id int64
	if err := tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}

	for _, l := range logs {
		l.UserID = id
		if err := upsertSnapshot(ctx, tx, l); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user: %w", mapError(err))
	}
	user.ID = id
	return nil
}

func (s *sqlStore) ListUsers(ctx context.Context, afterID int64, limit int) ([]*models.User, error) {
	var rows []userRow
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id > ? ORDER BY id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return toUsers(rows)
}

func toUsers(rows []userRow) ([]*models.User, error) {
	users := make([]*models.User, 0, len(rows))
	for _, r := range rows {
		u, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", r.ID, err)
		}
		users = append(users, u)
	}
	return users, nil
}

// Counting

func (s *sqlStore) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqlStore) CountAll(ctx context.Context) (int64, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM users`)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *sqlStore) CountWhereScoreGreaterThan(ctx context.Context, score models.Score) (int64, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM users WHERE total_score > ?`, score.Int())
	if err != nil {
		return 0, fmt.Errorf("count higher scores: %w", err)
	}
	return n, nil
}

func (s *sqlStore) CountCreatedAfter(ctx context.Context, t time.Time) (int64, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM users WHERE created_at > ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("count recent users: %w", err)
	}
	return n, nil
}

const updateUserQuery = `
	UPDATE users SET
		profile_image = :profile_image,
		total_score = :total_score,
		ranking = :ranking,
		percentile = :percentile,
		tier = :tier,
		last_full_scan_at = :last_full_scan_at,
		updated_at = :updated_at
	WHERE id = :id
`

func (s *sqlStore) SaveBatch(ctx context.Context, users []*models.User, logs []*models.ActivityLog) error {
	if len(users) == 0 && len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, u := range users {
		if u.UpdatedAt.IsZero() {
			u.UpdatedAt = time.Now().UTC()
		}
		res, err := tx.NamedExecContext(ctx, updateUserQuery, newUserRow(u))
		if err != nil {
			return fmt.Errorf("save user %d: %w", u.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("save user %d: %w", u.ID, ErrNotFound)
		}
	}
	for _, l := range logs {
		if err := upsertSnapshot(ctx, tx, l); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Ranking operations

func (s *sqlStore) bulkRankingQuery() string {
	return s.db.Rebind(`
		UPDATE users AS u SET
			ranking = r.new_rank,
			percentile = r.pct,
			tier = ` + models.TierCaseSQL("u.total_score", "r.pct") + `,
			updated_at = ?
		FROM (
			SELECT id,
				RANK() OVER (ORDER BY total_score DESC) AS new_rank,
				CUME_DIST() OVER (ORDER BY total_score DESC) * 100 AS pct
			FROM users
		) AS r
		WHERE u.id = r.id
	`)
}

func (s *sqlStore) BulkRecomputeRanking(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.bulkRankingQuery(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("recompute ranking: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recompute ranking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ranking: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"rows":     rows,
		"duration": time.Since(start).String(),
	}).Info("ranking recomputed")
	return rows, nil
}

func tierFilter(tier *models.Tier) (string, []interface{}) {
	if tier == nil {
		return "", nil
	}
	return " WHERE tier = ?", []interface{}{tier.String()}
}

func (s *sqlStore) ListRanking(ctx context.Context, tier *models.Tier, offset, limit int) ([]*models.User, error) {
	where, args := tierFilter(tier)
	query := s.db.Rebind(`SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY total_score DESC, id ASC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list ranking: %w", err)
	}
	return toUsers(rows)
}

func (s *sqlStore) CountRanking(ctx context.Context, tier *models.Tier) (int64, error) {
	where, args := tierFilter(tier)
	n, err := s.count(ctx, `SELECT COUNT(*) FROM users`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("count ranking: %w", err)
	}
	return n, nil
}

// Snapshot operations

func (s *sqlStore) getSnapshot(ctx context.Context, where string, args ...interface{}) (*models.ActivityLog, error) {
	var row logRow
	query := s.db.Rebind(`SELECT ` + logColumns + ` FROM activity_logs WHERE ` + where +
		` ORDER BY activity_date DESC LIMIT 1`)
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return row.toModel(), nil
}

func (s *sqlStore) FindLatestSnapshot(ctx context.Context, userID int64, kind models.SnapshotKind) (*models.ActivityLog, error) {
	return s.getSnapshot(ctx, "user_id = ? AND kind = ?", userID, string(kind))
}

func (s *sqlStore) FindSnapshotBefore(ctx context.Context, userID int64, kind models.SnapshotKind, date time.Time) (*models.ActivityLog, error) {
	return s.getSnapshot(ctx, "user_id = ? AND kind = ? AND activity_date < ?", userID, string(kind), models.DateOf(date))
}

func (s *sqlStore) FindSnapshotOn(ctx context.Context, userID int64, kind models.SnapshotKind, date time.Time) (*models.ActivityLog, error) {
	return s.getSnapshot(ctx, "user_id = ? AND kind = ? AND activity_date = ?", userID, string(kind), models.DateOf(date))
}

func (s *sqlStore) SaveSnapshot(ctx context.Context, log *models.ActivityLog) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertSnapshot(ctx, tx, log); err != nil {
		return err
	}
	return tx.Commit()
}

const upsertSnapshotQuery = `
	INSERT INTO activity_logs (user_id, kind, activity_date, commit_count, issue_count,
		pr_opened_count, pr_merged_count, review_count, diff_commit_count, diff_issue_count,
		diff_pr_opened_count, diff_pr_merged_count, diff_review_count, created_at)
	VALUES (:user_id, :kind, :activity_date, :commit_count, :issue_count,
		:pr_opened_count, :pr_merged_count, :review_count, :diff_commit_count, :diff_issue_count,
		:diff_pr_opened_count, :diff_pr_merged_count, :diff_review_count, :created_at)
	ON CONFLICT (user_id, activity_date, kind) DO UPDATE SET
		commit_count = EXCLUDED.commit_count,
		issue_count = EXCLUDED.issue_count,
		pr_opened_count = EXCLUDED.pr_opened_count,
		pr_merged_count = EXCLUDED.pr_merged_count,
		review_count = EXCLUDED.review_count,
		diff_commit_count = EXCLUDED.diff_commit_count,
		diff_issue_count = EXCLUDED.diff_issue_count,
		diff_pr_opened_count = EXCLUDED.diff_pr_opened_count,
		diff_pr_merged_count = EXCLUDED.diff_pr_merged_count,
		diff_review_count = EXCLUDED.diff_review_count
`

func upsertSnapshot(ctx context.Context, tx *sqlx.Tx, l *models.ActivityLog) error {
	if l.UserID == 0 {
		return fmt.Errorf("save snapshot: missing user id")
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.NamedExecContext(ctx, upsertSnapshotQuery, newLogRow(l)); err != nil {
		return fmt.Errorf("save snapshot %s: %w", l, err)
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

package storage

import (
	"time"

	"github.com/rohankatakam/gitranker/internal/models"
)

// userRow mirrors the users table
type userRow struct {
	ID              int64      `db:"id"`
	NodeID          string     `db:"node_id"`
	Username        string     `db:"username"`
	ProfileImage    string     `db:"profile_image"`
	GitHubCreatedAt time.Time  `db:"github_created_at"`
	TotalScore      int        `db:"total_score"`
	Ranking         int        `db:"ranking"`
	Percentile      float64    `db:"percentile"`
	Tier            string     `db:"tier"`
	LastFullScanAt  *time.Time `db:"last_full_scan_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

const userColumns = `id, node_id, username, profile_image, github_created_at, total_score,
	ranking, percentile, tier, last_full_scan_at, created_at, updated_at`

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func newUserRow(u *models.User) userRow {
	return userRow{
		ID:              u.ID,
		NodeID:          u.NodeID,
		Username:        u.Username,
		ProfileImage:    u.ProfileImage,
		GitHubCreatedAt: u.GitHubCreatedAt.UTC(),
		TotalScore:      u.Score.Int(),
		Ranking:         u.RankInfo.Rank,
		Percentile:      u.RankInfo.Percentile,
		Tier:            u.RankInfo.Tier.String(),
		LastFullScanAt:  utcPtr(u.LastFullScanAt),
		CreatedAt:       u.CreatedAt.UTC(),
		UpdatedAt:       u.UpdatedAt.UTC(),
	}
}

func (r userRow) toModel() (*models.User, error) {
	score, err := models.NewScore(r.TotalScore)
	if err != nil {
		return nil, err
	}
	tier, err := models.ParseTier(r.Tier)
	if err != nil {
		return nil, err
	}
	return &models.User{
		ID:              r.ID,
		NodeID:          r.NodeID,
		Username:        r.Username,
		ProfileImage:    r.ProfileImage,
		GitHubCreatedAt: r.GitHubCreatedAt.UTC(),
		Score:           score,
		RankInfo:        models.RankInfo{Rank: r.Ranking, Percentile: r.Percentile, Tier: tier},
		LastFullScanAt:  utcPtr(r.LastFullScanAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}, nil
}

// logRow mirrors the activity_logs table
type logRow struct {
	ID                int64     `db:"id"`
	UserID            int64     `db:"user_id"`
	Kind              string    `db:"kind"`
	ActivityDate      time.Time `db:"activity_date"`
	CommitCount       int       `db:"commit_count"`
	IssueCount        int       `db:"issue_count"`
	PROpenedCount     int       `db:"pr_opened_count"`
	PRMergedCount     int       `db:"pr_merged_count"`
	ReviewCount       int       `db:"review_count"`
	DiffCommitCount   int       `db:"diff_commit_count"`
	DiffIssueCount    int       `db:"diff_issue_count"`
	DiffPROpenedCount int       `db:"diff_pr_opened_count"`
	DiffPRMergedCount int       `db:"diff_pr_merged_count"`
	DiffReviewCount   int       `db:"diff_review_count"`
	CreatedAt         time.Time `db:"created_at"`
}

const logColumns = `id, user_id, kind, activity_date, commit_count, issue_count, pr_opened_count,
	pr_merged_count, review_count, diff_commit_count, diff_issue_count, diff_pr_opened_count,
	diff_pr_merged_count, diff_review_count, created_at`

func newLogRow(l *models.ActivityLog) logRow {
	return logRow{
		ID:                l.ID,
		UserID:            l.UserID,
		Kind:              string(l.Kind),
		ActivityDate:      models.DateOf(l.ActivityDate),
		CommitCount:       l.Stats.Commits,
		IssueCount:        l.Stats.Issues,
		PROpenedCount:     l.Stats.PROpened,
		PRMergedCount:     l.Stats.PRMerged,
		ReviewCount:       l.Stats.Reviews,
		DiffCommitCount:   l.Diff.Commits,
		DiffIssueCount:    l.Diff.Issues,
		DiffPROpenedCount: l.Diff.PROpened,
		DiffPRMergedCount: l.Diff.PRMerged,
		DiffReviewCount:   l.Diff.Reviews,
		CreatedAt:         l.CreatedAt.UTC(),
	}
}

func (r logRow) toModel() *models.ActivityLog {
	return &models.ActivityLog{
		ID:           r.ID,
		UserID:       r.UserID,
		Kind:         models.SnapshotKind(r.Kind),
		ActivityDate: models.DateOf(r.ActivityDate),
		Stats: models.ActivityStatistics{
			Commits:  r.CommitCount,
			Issues:   r.IssueCount,
			PROpened: r.PROpenedCount,
			PRMerged: r.PRMergedCount,
			Reviews:  r.ReviewCount,
		},
		Diff: models.ActivityStatistics{
			Commits:  r.DiffCommitCount,
			Issues:   r.DiffIssueCount,
			PROpened: r.DiffPROpenedCount,
			PRMerged: r.DiffPRMergedCount,
			Reviews:  r.DiffReviewCount,
		},
		CreatedAt: r.CreatedAt.UTC(),
	}
}

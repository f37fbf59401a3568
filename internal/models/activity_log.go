package models

import (
	"fmt"
	"time"
)

// SnapshotKind distinguishes daily snapshots from year-end baselines
type SnapshotKind string

const (
	SnapshotDaily    SnapshotKind = "daily"
	SnapshotBaseline SnapshotKind = "baseline"
)

// ActivityLog is a dated snapshot of a user's absolute counts together with
// the change since the previous snapshot
type ActivityLog struct {
	ID           int64              `json:"id"`
	UserID       int64              `json:"user_id"`
	Kind         SnapshotKind       `json:"kind"`
	ActivityDate time.Time          `json:"activity_date"`
	Stats        ActivityStatistics `json:"stats"`
	Diff         ActivityStatistics `json:"diff"`
	CreatedAt    time.Time          `json:"created_at"`
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfYear is January 1st 00:00 UTC.
func StartOfYear(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// BaselineDate is December 31st of the year before year.
func BaselineDate(year int) time.Time {
	return time.Date(year-1, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// NewDailyLog builds a daily snapshot diffed against previous.
// A nil previous diffs against zero.
func NewDailyLog(userID int64, date time.Time, stats ActivityStatistics, previous *ActivityLog) *ActivityLog {
	diff := stats
	if previous != nil {
		diff = stats.Diff(previous.Stats)
	}
	return &ActivityLog{
		UserID:       userID,
		Kind:         SnapshotDaily,
		ActivityDate: DateOf(date),
		Stats:        stats,
		Diff:         diff,
	}
}

// NewBaselineLog builds the year-end anchor used by incremental updates of year.
func NewBaselineLog(userID int64, year int, stats ActivityStatistics) *ActivityLog {
	return &ActivityLog{
		UserID:       userID,
		Kind:         SnapshotBaseline,
		ActivityDate: BaselineDate(year),
		Stats:        stats,
	}
}

// IsBaselineFor reports whether l anchors incremental updates during year.
func (l *ActivityLog) IsBaselineFor(year int) bool {
	return l != nil && l.Kind == SnapshotBaseline && l.ActivityDate.Equal(BaselineDate(year))
}

func (l *ActivityLog) String() string {
	return fmt.Sprintf("%s snapshot of user %d on %s", l.Kind, l.UserID, l.ActivityDate.Format("2006-01-02"))
}

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func createUsers(t *testing.T, store Store, scores ...int) []*models.User {
	t.Helper()
	var users []*models.User
	for i, score := range scores {
		u := &models.User{
			Username:        fmt.Sprintf("user%d", i),
			NodeID:          fmt.Sprintf("node%d", i),
			GitHubCreatedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Score:           models.Score(score),
			RankInfo:        models.InitialRankInfo(),
			CreatedAt:       testNow,
		}
		require.NoError(t, store.CreateUser(context.Background(), u))
		require.NotZero(t, u.ID)
		users = append(users, u)
	}
	return users
}

func TestBulkRecomputeRanking(t *testing.T) {
	tests := []struct {
		name        string
		scores      []int
		ranks       []int
		percentiles []float64
	}{
		{
			name:        "distinct scores",
			scores:      []int{3000, 1500, 100},
			ranks:       []int{1, 2, 3},
			percentiles: []float64{33.33, 66.67, 100.0},
		},
		{
			name:        "ties share rank and percentile",
			scores:      []int{1000, 1000, 500},
			ranks:       []int{1, 1, 3},
			percentiles: []float64{66.67, 66.67, 100.0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := setupTestStore(t)
			users := createUsers(t, store, tt.scores...)

			rows, err := store.BulkRecomputeRanking(ctx, testNow)
			require.NoError(t, err)
			assert.Equal(t, int64(len(users)), rows)

			for i, u := range users {
				got, err := store.FindByID(ctx, u.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.ranks[i], got.RankInfo.Rank, "rank of score %d", tt.scores[i])
				assert.InDelta(t, tt.percentiles[i], got.RankInfo.Percentile, 0.01)
				assert.Equal(t, models.TierFor(got.Score, got.RankInfo.Percentile), got.RankInfo.Tier)
				assert.True(t, got.UpdatedAt.Equal(testNow))
			}
		})
	}
}

func TestBulkRecomputeTiersMatchGoRules(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	scores := []int{9000, 8000, 7000, 6000, 5000, 4000, 3000, 2500, 2100, 1900, 1600, 1200, 900, 600, 400, 100, 50, 10, 5, 0}
	createUsers(t, store, scores...)

	_, err := store.BulkRecomputeRanking(ctx, testNow)
	require.NoError(t, err)

	users, err := store.ListRanking(ctx, nil, 0, 100)
	require.NoError(t, err)
	require.Len(t, users, len(scores))
	var golds int64
	for _, u := range users {
		want := models.TierFor(u.Score, u.RankInfo.Percentile)
		assert.Equal(t, want, u.RankInfo.Tier, "score %d pct %.2f", u.Score, u.RankInfo.Percentile)
		if want == models.TierGold {
			golds++
		}
	}
	assert.GreaterOrEqual(t, users[0].RankInfo.Tier, models.TierMaster)
	// 1900 is under the elite floor, so its percentile does not matter
	assert.Equal(t, models.TierGold, users[9].RankInfo.Tier)
	assert.Equal(t, models.TierIron, users[len(users)-1].RankInfo.Tier)

	gold := models.TierGold
	n, err := store.CountRanking(ctx, &gold)
	require.NoError(t, err)
	assert.Equal(t, golds, n)
}

func TestCounts(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	createUsers(t, store, 300, 200, 200, 100)

	total, err := store.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	higher, err := store.CountWhereScoreGreaterThan(ctx, models.Score(150))
	require.NoError(t, err)
	assert.Equal(t, int64(3), higher)

	recent, err := store.CountCreatedAfter(ctx, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), recent)
	recent, err = store.CountCreatedAfter(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, recent)
}

func TestCreateUserConflict(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	createUsers(t, store, 10)

	dup := &models.User{Username: "user0", GitHubCreatedAt: testNow}
	err := store.CreateUser(ctx, dup)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Zero(t, dup.ID)
}

func TestFindUserNotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.FindByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsersPagesByID(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	created := createUsers(t, store, 1, 2, 3, 4, 5)

	var seen []int64
	var after int64
	for {
		page, err := store.ListUsers(ctx, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, u := range page {
			seen = append(seen, u.ID)
		}
		after = page[len(page)-1].ID
	}

	require.Len(t, seen, len(created))
	for i, u := range created {
		assert.Equal(t, u.ID, seen[i])
	}
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	user := createUsers(t, store, 0)[0]

	baseline := models.NewBaselineLog(user.ID, 2026, models.ActivityStatistics{Commits: 100})
	require.NoError(t, store.SaveSnapshot(ctx, baseline))

	day1 := time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	first := models.NewDailyLog(user.ID, day1, models.ActivityStatistics{Commits: 110}, nil)
	require.NoError(t, store.SaveSnapshot(ctx, first))
	second := models.NewDailyLog(user.ID, day2, models.ActivityStatistics{Commits: 115, Reviews: 1}, first)
	require.NoError(t, store.SaveSnapshot(ctx, second))

	got, err := store.FindSnapshotBefore(ctx, user.ID, models.SnapshotBaseline, models.StartOfYear(2026))
	require.NoError(t, err)
	assert.True(t, got.IsBaselineFor(2026))
	assert.Equal(t, 100, got.Stats.Commits)

	latest, err := store.FindLatestSnapshot(ctx, user.ID, models.SnapshotDaily)
	require.NoError(t, err)
	assert.True(t, latest.ActivityDate.Equal(day2))
	assert.Equal(t, models.ActivityStatistics{Commits: 5, Reviews: 1}, latest.Diff)

	prev, err := store.FindSnapshotBefore(ctx, user.ID, models.SnapshotDaily, day2)
	require.NoError(t, err)
	assert.True(t, prev.ActivityDate.Equal(day1))

	// same-day rewrite replaces the row
	rewrite := models.NewDailyLog(user.ID, day2, models.ActivityStatistics{Commits: 120}, prev)
	require.NoError(t, store.SaveSnapshot(ctx, rewrite))
	on, err := store.FindSnapshotOn(ctx, user.ID, models.SnapshotDaily, day2)
	require.NoError(t, err)
	assert.Equal(t, 120, on.Stats.Commits)
	assert.Equal(t, 10, on.Diff.Commits)

	_, err = store.FindSnapshotBefore(ctx, user.ID, models.SnapshotDaily, day1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveBatch(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	users := createUsers(t, store, 10, 20)

	scanAt := testNow.Add(time.Minute)
	users[0].UpdateScore(models.Score(500), scanAt)
	users[0].RankInfo = models.RankInfo{Rank: 1, Percentile: 50, Tier: models.TierBronze}
	users[0].RecordFullScan(scanAt)
	logs := []*models.ActivityLog{
		models.NewDailyLog(users[0].ID, scanAt, models.ActivityStatistics{Commits: 500}, nil),
		models.NewBaselineLog(users[0].ID, 2026, models.ActivityStatistics{Commits: 400}),
	}

	require.NoError(t, store.SaveBatch(ctx, users[:1], logs))

	got, err := store.FindByID(ctx, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.Score(500), got.Score)
	assert.Equal(t, models.TierBronze, got.RankInfo.Tier)
	require.NotNil(t, got.LastFullScanAt)
	assert.True(t, got.LastFullScanAt.Equal(scanAt))

	_, err = store.FindSnapshotOn(ctx, users[0].ID, models.SnapshotBaseline, models.BaselineDate(2026))
	assert.NoError(t, err)

	// a missing user rolls back the whole batch
	ghost := &models.User{ID: 999, Username: "ghost"}
	err = store.SaveBatch(ctx, []*models.User{users[1], ghost}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserWithSnapshots(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	user := &models.User{Username: "octocat", GitHubCreatedAt: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), Score: 80, CreatedAt: testNow}
	daily := models.NewDailyLog(0, testNow, models.ActivityStatistics{Commits: 80}, nil)
	require.NoError(t, store.CreateUser(ctx, user, daily))

	assert.Equal(t, user.ID, daily.UserID)
	got, err := store.FindLatestSnapshot(ctx, user.ID, models.SnapshotDaily)
	require.NoError(t, err)
	assert.Equal(t, 80, got.Stats.Commits)
}

func TestSchemaDialects(t *testing.T) {
	pg := Schema(DialectPostgres)
	lite := Schema(DialectSQLite)
	require.Equal(t, len(pg), len(lite))
	assert.Contains(t, pg[0], "BIGSERIAL PRIMARY KEY")
	assert.Contains(t, lite[0], "INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, stmt := range append(pg, lite...) {
		assert.NotContains(t, stmt, "{{")
	}
}

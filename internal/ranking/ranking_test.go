package ranking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory population keyed by score.
type memStore struct {
	mu         sync.Mutex
	users      []*models.User
	recomputes atomic.Int32
	failNext   bool
	listCalls  atomic.Int32
	listDelay  time.Duration
}

func (s *memStore) CountAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *memStore) CountWhereScoreGreaterThan(ctx context.Context, score models.Score) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.Score > score {
			n++
		}
	}
	return n, nil
}

func (s *memStore) BulkRecomputeRanking(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return 0, errors.New("database is locked")
	}
	s.recomputes.Add(1)
	return int64(len(s.users)), nil
}

func (s *memStore) ListRanking(ctx context.Context, tier *models.Tier, offset, limit int) ([]*models.User, error) {
	s.listCalls.Add(1)
	if s.listDelay > 0 {
		time.Sleep(s.listDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.filter(tier) {
		if offset > 0 {
			offset--
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *memStore) CountRanking(ctx context.Context, tier *models.Tier) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filter(tier))), nil
}

func (s *memStore) filter(tier *models.Tier) []*models.User {
	var out []*models.User
	for _, u := range s.users {
		if tier == nil || u.RankInfo.Tier == *tier {
			out = append(out, u)
		}
	}
	return out
}

func populate(scores ...int) *memStore {
	s := &memStore{}
	for i, score := range scores {
		s.users = append(s.users, &models.User{ID: int64(i + 1), Username: "user" + string(rune('a'+i)), Score: models.Score(score)})
	}
	return s
}

func TestRankForNewUser(t *testing.T) {
	store := populate(3000, 1500, 100)
	engine := NewEngine(store)

	info, err := engine.RankForNewUser(context.Background(), models.Score(2000))
	require.NoError(t, err)
	assert.Equal(t, 2, info.Rank)
	assert.InDelta(t, 50.0, info.Percentile, 1e-9)
	assert.Equal(t, models.TierGold, info.Tier)

	info, err = NewEngine(&memStore{}).RankForNewUser(context.Background(), models.Score(10))
	require.NoError(t, err)
	assert.Equal(t, 1, info.Rank)
	assert.Equal(t, 100.0, info.Percentile)
}

func TestRankForExistingUserExcludesStaleSelf(t *testing.T) {
	store := populate(3000, 1500, 100)
	engine := NewEngine(store)

	// user 1 drops from 3000 to 1000; its stored row still says 3000
	info, err := engine.RankFor(context.Background(), store.users[0], models.Score(1000))
	require.NoError(t, err)
	assert.Equal(t, 2, info.Rank)
	assert.InDelta(t, 66.67, info.Percentile, 0.01)

	// user 3 climbs from 100 to 1600
	info, err = engine.RankFor(context.Background(), store.users[2], models.Score(1600))
	require.NoError(t, err)
	assert.Equal(t, 2, info.Rank)
}

func TestRankForEmptyPopulationSentinel(t *testing.T) {
	engine := NewEngine(&memStore{})
	info, err := engine.RankFor(context.Background(), &models.User{ID: 7}, models.Score(50))
	require.NoError(t, err)
	assert.Equal(t, models.InitialRankInfo(), info)
}

type fakeInvalidator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeInvalidator) InvalidateRankings(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

func TestRecalculateIfNeededDebounces(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := populate(10, 20)
	inv := &fakeInvalidator{}
	coord := NewCoordinator(store, WithClock(clock), WithInvalidator(inv))

	assert.Equal(t, StateIdle, coord.stateLocked(now))

	ran, err := coord.RecalculateIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = coord.RecalculateIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	assert.Equal(t, int32(1), store.recomputes.Load())
	assert.Equal(t, int32(1), inv.calls.Load())
	assert.Equal(t, StateCoolingDown, coord.stateLocked(now))

	now = now.Add(DefaultDebounce)
	assert.Equal(t, StateIdle, coord.stateLocked(now))
	ran, err = coord.RecalculateIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int32(2), store.recomputes.Load())
}

func TestRecalculateIfNeededSingleFlight(t *testing.T) {
	store := populate(10, 20, 30)
	coord := NewCoordinator(store)

	var executed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ran, err := coord.RecalculateIfNeeded(context.Background())
			if err == nil && ran {
				executed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), executed.Load())
	assert.Equal(t, int32(1), store.recomputes.Load())
}

func TestRecalculateFailureStaysIdle(t *testing.T) {
	store := populate(10)
	store.failNext = true
	coord := NewCoordinator(store)

	ran, err := coord.RecalculateIfNeeded(context.Background())
	assert.Error(t, err)
	assert.False(t, ran)
	assert.Equal(t, StateIdle, coord.stateLocked(time.Now()))

	ran, err = coord.RecalculateIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestForceIgnoresWindowAndRestartsIt(t *testing.T) {
	store := populate(10, 20)
	inv := &fakeInvalidator{err: errors.New("redis down")}
	coord := NewCoordinator(store, WithInvalidator(inv), WithDebounce(time.Hour))

	ran, err := coord.RecalculateIfNeeded(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	rows, err := coord.Force(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.Equal(t, int32(2), store.recomputes.Load())
	assert.Equal(t, int32(2), inv.calls.Load())

	ran, err = coord.RecalculateIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

package ranking

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, target)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = raw
	c.mu.Unlock()
	return nil
}

func rankedStore(n int) *memStore {
	s := &memStore{}
	for i := 0; i < n; i++ {
		tier := models.TierSilver
		if i < 3 {
			tier = models.TierChallenger
		}
		s.users = append(s.users, &models.User{
			ID:       int64(i + 1),
			Username: "dev" + string(rune('a'+i%26)),
			Score:    models.Score(5000 - i*10),
			RankInfo: models.RankInfo{Rank: i + 1, Percentile: float64(i+1) / float64(n) * 100, Tier: tier},
		})
	}
	return s
}

func TestBoardPage(t *testing.T) {
	store := rankedStore(45)
	board := NewBoard(store, nil, 0, nil)

	page, err := board.Page(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Size)
	assert.Len(t, page.Entries, 20)
	assert.Equal(t, int64(45), page.Total)
	assert.Equal(t, 3, page.TotalPages())
	assert.Equal(t, 1, page.Entries[0].Rank)

	page, err = board.Page(context.Background(), 3, nil)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 5)
	assert.Equal(t, 41, page.Entries[0].Rank)

	tier := models.TierChallenger
	page, err = board.Page(context.Background(), 1, &tier)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 3)
	assert.Equal(t, "CHALLENGER", page.Tier)

	_, err = board.Page(context.Background(), 0, nil)
	assert.Error(t, err)
}

func TestBoardUsesCache(t *testing.T) {
	store := rankedStore(5)
	cache := newMapCache()
	board := NewBoard(store, cache, 2, nil)

	first, err := board.Page(context.Background(), 2, nil)
	require.NoError(t, err)
	second, err := board.Page(context.Background(), 2, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), store.listCalls.Load())
	assert.Equal(t, first.Entries, second.Entries)
	assert.Contains(t, cache.data, "ranking:ALL:2")
}

func TestBoardCollapsesConcurrentMisses(t *testing.T) {
	store := rankedStore(10)
	store.listDelay = 50 * time.Millisecond
	board := NewBoard(store, nil, 5, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := board.Page(context.Background(), 1, nil)
			assert.NoError(t, err)
			assert.Len(t, page.Entries, 5)
		}()
	}
	wg.Wait()

	assert.Less(t, store.listCalls.Load(), int32(8))
}

func TestPageKey(t *testing.T) {
	tier := models.TierGold
	assert.Equal(t, "ranking:ALL:1", PageKey(nil, 1))
	assert.Equal(t, "ranking:GOLD:4", PageKey(&tier, 4))
}

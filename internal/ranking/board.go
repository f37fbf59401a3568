package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultPageSize is the number of rows per leaderboard page.
const DefaultPageSize = 20

// KeyPrefix namespaces cached leaderboard pages.
const KeyPrefix = "ranking"

// Lister is the store side of the leaderboard. A nil tier means all tiers.
type Lister interface {
	ListRanking(ctx context.Context, tier *models.Tier, offset, limit int) ([]*models.User, error)
	CountRanking(ctx context.Context, tier *models.Tier) (int64, error)
}

// PageCache stores rendered pages
type PageCache interface {
	Get(ctx context.Context, key string, target interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Entry is one leaderboard row
type Entry struct {
	Rank         int         `json:"rank" yaml:"rank"`
	Username     string      `json:"username" yaml:"username"`
	ProfileImage string      `json:"profile_image,omitempty" yaml:"profile_image,omitempty"`
	Score        int         `json:"score" yaml:"score"`
	Percentile   float64     `json:"percentile" yaml:"percentile"`
	Tier         models.Tier `json:"tier" yaml:"tier"`
}

// Page is one page of the leaderboard
type Page struct {
	Number      int       `json:"page" yaml:"page"`
	Size        int       `json:"size" yaml:"size"`
	Tier        string    `json:"tier,omitempty" yaml:"tier,omitempty"`
	Total       int64     `json:"total" yaml:"total"`
	Entries     []Entry   `json:"entries" yaml:"entries"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// TotalPages rounds Total up to whole pages.
func (p *Page) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// Board serves leaderboard pages, caching them and collapsing concurrent
// misses for the same page into one store query
type Board struct {
	store    Lister
	cache    PageCache
	pageSize int
	group    singleflight.Group
	logger   logrus.FieldLogger
}

// NewBoard creates a board. cache may be nil.
func NewBoard(store Lister, cache PageCache, pageSize int, logger logrus.FieldLogger) *Board {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Board{
		store:    store,
		cache:    cache,
		pageSize: pageSize,
		logger:   logging.OrDiscard(logger).WithField("component", "leaderboard"),
	}
}

// PageKey is the cache key for a page. Invalidation deletes KeyPrefix+":*".
func PageKey(tier *models.Tier, page int) string {
	name := "ALL"
	if tier != nil {
		name = tier.String()
	}
	return fmt.Sprintf("%s:%s:%d", KeyPrefix, name, page)
}

// Page returns page (1-based) of the leaderboard, optionally filtered to tier.
func (b *Board) Page(ctx context.Context, page int, tier *models.Tier) (*Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	key := PageKey(tier, page)

	if b.cache != nil {
		var cached Page
		hit, err := b.cache.Get(ctx, key, &cached)
		if err != nil {
			b.logger.WithError(err).WithField("key", key).Warn("leaderboard cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	v, err, shared := b.group.Do(key, func() (interface{}, error) {
		return b.load(ctx, page, tier)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.logger.WithField("key", key).Debug("leaderboard load shared")
	}
	result := *v.(*Page)
	return &result, nil
}

func (b *Board) load(ctx context.Context, page int, tier *models.Tier) (*Page, error) {
	total, err := b.store.CountRanking(ctx, tier)
	if err != nil {
		return nil, fmt.Errorf("count ranking: %w", err)
	}
	users, err := b.store.ListRanking(ctx, tier, (page-1)*b.pageSize, b.pageSize)
	if err != nil {
		return nil, fmt.Errorf("list ranking: %w", err)
	}

	result := &Page{
		Number:      page,
		Size:        b.pageSize,
		Total:       total,
		Entries:     make([]Entry, 0, len(users)),
		GeneratedAt: time.Now().UTC(),
	}
	if tier != nil {
		result.Tier = tier.String()
	}
	for _, u := range users {
		result.Entries = append(result.Entries, Entry{
			Rank:         u.RankInfo.Rank,
			Username:     u.Username,
			ProfileImage: u.ProfileImage,
			Score:        u.Score.Int(),
			Percentile:   u.RankInfo.Percentile,
			Tier:         u.RankInfo.Tier,
		})
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, PageKey(tier, page), result); err != nil {
			b.logger.WithError(err).Warn("leaderboard cache write failed")
		}
	}
	return result, nil
}

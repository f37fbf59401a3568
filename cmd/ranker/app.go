package main

import (
	"context"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/rohankatakam/gitranker/internal/activity"
	"github.com/rohankatakam/gitranker/internal/cache"
	"github.com/rohankatakam/gitranker/internal/config"
	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/github"
	"github.com/rohankatakam/gitranker/internal/metrics"
	"github.com/rohankatakam/gitranker/internal/ranking"
	"github.com/rohankatakam/gitranker/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// sqlStore is a Store that shares its handle with the failure queue.
type sqlStore interface {
	storage.Store
	DB() *sqlx.DB
}

// rankingCache is what the board reads and the coordinator invalidates.
type rankingCache interface {
	ranking.PageCache
	ranking.Invalidator
}

// app holds the components wired from configuration. Fields stay nil
// unless the command asked for them.
type app struct {
	store       sqlStore
	cache       rankingCache
	closeCache  func() error
	client      *github.Client
	profiles    *github.ProfileFetcher
	updater     *activity.Updater
	coordinator *ranking.Coordinator
	apiMetrics  *metrics.API
}

// openStore connects to the configured database and applies the schema.
func openStore(ctx context.Context, c *config.Config, log logrus.FieldLogger) (sqlStore, error) {
	var (
		store sqlStore
		err   error
	)
	switch c.Storage.Type {
	case "postgres":
		store, err = storage.NewPostgresStore(ctx, c.Storage.PostgresDSN, c.Storage.Driver, log)
	case "sqlite":
		store, err = storage.NewSQLiteStore(ctx, c.Storage.LocalPath, log)
	default:
		return nil, rankerrors.ConfigErrorf("unknown storage type %q", c.Storage.Type)
	}
	if err != nil {
		return nil, rankerrors.DatabaseError(err, "failed to open store")
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, rankerrors.DatabaseError(err, "failed to migrate store")
	}
	return store, nil
}

// openCache connects to Redis when configured. A Redis that does not
// answer degrades to no caching.
func openCache(ctx context.Context, c *config.Config, log logrus.FieldLogger) (rankingCache, func() error) {
	if c.Cache.RedisAddr == "" {
		return cache.Nop{}, func() error { return nil }
	}
	client, err := cache.NewClient(ctx, c.Cache.RedisAddr, c.Cache.RedisPassword, c.Cache.TTL, log)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, ranking cache disabled")
		return cache.Nop{}, func() error { return nil }
	}
	return client, client.Close
}

// validate fails fast on configuration the command cannot work with.
func validate(ctx config.ValidationContext) error {
	result := cfg.Validate(ctx)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if result.HasErrors() {
		return rankerrors.ConfigError(result.Error())
	}
	return nil
}

// newApp wires storage, cache and ranking, plus the GitHub stack when
// withGitHub is set.
func newApp(ctx context.Context, withGitHub bool) (*app, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{store: store}
	a.cache, a.closeCache = openCache(ctx, cfg, logger)

	a.coordinator = ranking.NewCoordinator(store,
		ranking.WithDebounce(cfg.Ranking.Debounce),
		ranking.WithInvalidator(a.cache),
		ranking.WithLogger(logger),
	)

	if !withGitHub {
		return a, nil
	}

	pool, err := github.NewPool(cfg.GitHub.Tokens, cfg.GitHub.Threshold, github.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, rankerrors.ConfigErrorf("invalid github tokens: %v", err)
	}
	a.apiMetrics = metrics.NewAPI()
	classifier := github.NewClassifier(a.apiMetrics, logger)
	transport := github.NewHTTPTransport(cfg.GitHub.GraphQLURL, cfg.GitHub.Timeout, classifier)
	a.client = github.NewClient(transport, pool, classifier, github.ClientConfig{
		RateLimit:   cfg.GitHub.RateLimit,
		Concurrency: cfg.GitHub.Concurrency,
		Timeout:     cfg.GitHub.Timeout,
	}, logger)
	a.profiles, err = github.NewProfileFetcher(pool, classifier, cfg.GitHub.RestURL, cfg.GitHub.RateLimit, logger)
	if err != nil {
		a.Close()
		return nil, rankerrors.ConfigErrorf("invalid github rest url: %v", err)
	}
	a.updater = activity.NewUpdater(a.client, logger)
	return a, nil
}

// Close releases the store and the cache.
func (a *app) Close() {
	if a.closeCache != nil {
		if err := a.closeCache(); err != nil {
			logger.WithError(err).Warn("failed to close cache")
		}
	}
	if err := a.store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close store")
	}
}

// logAPIStats writes the GitHub call counters at the end of a command.
func (a *app) logAPIStats() {
	if a.apiMetrics == nil {
		return
	}
	s := a.apiMetrics.Snapshot()
	logger.WithFields(logrus.Fields{
		"success":      s.Success,
		"failure":      s.Failure,
		"rate_limited": s.RateLimited,
		"cost":         s.Cost,
		"mean_latency": s.MeanLatency.String(),
	}).Info("github api usage")
}

// isTerminal reports whether f is attached to a TTY.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

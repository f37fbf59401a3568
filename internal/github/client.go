package github

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultConcurrency bounds parallel yearly queries of one full scan.
const DefaultConcurrency = 5

// ClientConfig tunes the ActivityClient
type ClientConfig struct {
	RateLimit   float64       // requests per second across all tokens
	Concurrency int           // parallel yearly queries per full scan
	Timeout     time.Duration // per-call bound
}

// Client fetches contribution data through the Transport, rotating tokens
// from the Pool and rate limiting outbound calls
type Client struct {
	transport   Transport
	pool        *Pool
	classifier  *Classifier
	rateLimiter *rate.Limiter
	maxWorkers  int
	timeout     time.Duration
	now         func() time.Time
	logger      logrus.FieldLogger
}

// NewClient creates an activity client.
func NewClient(transport Transport, pool *Pool, classifier *Classifier, cfg ClientConfig, logger logrus.FieldLogger) *Client {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		transport:   transport,
		pool:        pool,
		classifier:  classifier,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Concurrency),
		maxWorkers:  cfg.Concurrency,
		timeout:     cfg.Timeout,
		now:         time.Now,
		logger:      logging.OrDiscard(logger).WithField("component", "github"),
	}
}

// SetClock replaces time.Now. Intended for tests.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// Pool returns the token pool the client draws from.
func (c *Client) Pool() *Pool { return c.pool }

// execute runs one query on a freshly acquired token and feeds quota
// observations back into the pool.
func (c *Client) execute(ctx context.Context, query string) (*Payload, string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter: %w", err)
	}

	token, err := c.pool.Acquire()
	if err != nil {
		return nil, "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	payload, err := c.transport.Execute(callCtx, token, query)
	c.classifier.Metrics().ObserveLatency(time.Since(start))
	if err != nil {
		err = c.classifier.ClassifyTransport(err)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited {
			c.pool.Update(token, 0, apiErr.ResetAt)
		}
		return nil, token, err
	}

	if payload.HasRemaining {
		c.pool.Update(token, payload.Remaining, payload.ResetAt)
	}
	if err := c.classifier.ClassifyGraphQL(payload.Errors); err != nil {
		return payload, token, err
	}
	c.classifier.Metrics().RecordSuccess()
	return payload, token, nil
}

func (c *Client) observeRateLimit(token string, rl *RateLimitInfo) {
	if rl == nil {
		return
	}
	c.classifier.Metrics().RecordCost(rl.Cost)
	c.pool.Update(token, rl.Remaining, rl.ResetAt)
}

func (c *Client) fetchActivity(ctx context.Context, query string) (*ActivityResponse, error) {
	payload, token, err := c.execute(ctx, query)
	if err != nil {
		return nil, err
	}
	resp, err := DecodeActivity(payload.Data)
	if err != nil {
		return nil, c.classifier.ClassifyDecode("undecodable contribution data", err)
	}
	c.observeRateLimit(token, resp.RateLimit)
	return resp, nil
}

func invalidLogin(username string) error {
	return &APIError{Kind: KindClientError, Message: fmt.Sprintf("invalid github login %q", username)}
}

// FetchAllActivities fetches every year from joinedAt through now plus the
// all-time merged PR count, running up to Concurrency queries in parallel.
func (c *Client) FetchAllActivities(ctx context.Context, username string, joinedAt time.Time) (*ActivityResponse, error) {
	if !ValidLogin(username) {
		return nil, invalidLogin(username)
	}

	now := c.now()
	joinYear := joinedAt.UTC().Year()
	currentYear := now.UTC().Year()
	if joinedAt.IsZero() || joinYear > currentYear {
		joinYear = currentYear
	}

	queries := []string{MergedPRQuery(username)}
	for year := joinYear; year <= currentYear; year++ {
		queries = append(queries, YearlyContributionQuery(username, year, joinedAt, now))
	}

	var (
		mu     sync.Mutex
		merged = &ActivityResponse{Years: make(map[int]YearContributions)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			resp, err := c.fetchActivity(gctx, q)
			if err != nil {
				return err
			}
			mu.Lock()
			merged.Merge(resp)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"username": username,
		"years":    currentYear - joinYear + 1,
		"cost":     merged.TotalCost,
	}).Debug("full activity fetch complete")
	return merged, nil
}

// FetchYear fetches one calendar year together with the all-time merged
// PR count in a single query.
func (c *Client) FetchYear(ctx context.Context, username string, year int) (*ActivityResponse, error) {
	if !ValidLogin(username) {
		return nil, invalidLogin(username)
	}
	resp, err := c.fetchActivity(ctx, YearWithMergedPRQuery(username, year, c.now()))
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"username": username,
		"year":     year,
		"cost":     resp.TotalCost,
	}).Debug("yearly activity fetch complete")
	return resp, nil
}

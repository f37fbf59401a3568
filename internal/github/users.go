package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// retryLogger adapts logrus to retryablehttp.LeveledLogger
type retryLogger struct {
	logger logrus.FieldLogger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Error(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Warn(msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// ProfileFetcher looks up GitHub accounts over the REST API
type ProfileFetcher struct {
	pool        *Pool
	classifier  *Classifier
	rateLimiter *rate.Limiter
	baseURL     *url.URL
	httpClient  *http.Client
	logger      logrus.FieldLogger

	mu      sync.Mutex
	clients map[string]*gogithub.Client
}

// NewProfileFetcher creates a REST profile fetcher. restURL may be empty
// for api.github.com.
func NewProfileFetcher(pool *Pool, classifier *Classifier, restURL string, rateLimit float64, logger logrus.FieldLogger) (*ProfileFetcher, error) {
	logger = logging.OrDiscard(logger).WithField("component", "github-rest")

	var base *url.URL
	if restURL != "" {
		if !strings.HasSuffix(restURL, "/") {
			restURL += "/"
		}
		u, err := url.Parse(restURL)
		if err != nil {
			return nil, fmt.Errorf("parse github rest url: %w", err)
		}
		base = u
	}
	if rateLimit <= 0 {
		rateLimit = 10
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.HTTPClient.Timeout = DefaultTimeout
	retryClient.Logger = &retryLogger{logger: logger}
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &ProfileFetcher{
		pool:        pool,
		classifier:  classifier,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		baseURL:     base,
		httpClient:  retryClient.StandardClient(),
		logger:      logger,
		clients:     make(map[string]*gogithub.Client),
	}, nil
}

// checkRetry leaves rate limits and client errors to the classifier and
// retries only connection failures and transient 5xx responses.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden) {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (f *ProfileFetcher) clientFor(token string) *gogithub.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[token]; ok {
		return c
	}
	c := gogithub.NewClient(f.httpClient).WithAuthToken(token)
	if f.baseURL != nil {
		c.BaseURL = f.baseURL
	}
	f.clients[token] = c
	return c
}

// FetchProfile returns the account's identity and creation date.
func (f *ProfileFetcher) FetchProfile(ctx context.Context, username string) (*UserInfo, error) {
	if !ValidLogin(username) {
		return nil, invalidLogin(username)
	}
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	token, err := f.pool.Acquire()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	user, resp, err := f.clientFor(token).Users.Get(ctx, username)
	f.classifier.Metrics().ObserveLatency(time.Since(start))
	if resp != nil && resp.Rate.Limit > 0 {
		f.pool.Update(token, resp.Rate.Remaining, resp.Rate.Reset.Time)
		if resp.Rate.Remaining < 100 {
			f.logger.WithField("remaining", resp.Rate.Remaining).
				WithField("limit", resp.Rate.Limit).
				Warn("github rest rate limit low")
		}
	}
	if err != nil {
		var respErr *gogithub.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound {
			f.classifier.Metrics().RecordFailure()
			return nil, &APIError{Kind: KindUserNotFound, Status: http.StatusNotFound, Message: username, Cause: err}
		}
		classified := f.classifier.ClassifyTransport(err)
		var apiErr *APIError
		if errors.As(classified, &apiErr) && apiErr.Kind == KindRateLimited {
			f.pool.Update(token, 0, apiErr.ResetAt)
		}
		return nil, classified
	}
	f.classifier.Metrics().RecordSuccess()

	return &UserInfo{
		NodeID:     user.GetNodeID(),
		DatabaseID: user.GetID(),
		CreatedAt:  user.GetCreatedAt().Time,
		Login:      user.GetLogin(),
		AvatarURL:  user.GetAvatarURL(),
	}, nil
}

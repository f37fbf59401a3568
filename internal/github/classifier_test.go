package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/rohankatakam/gitranker/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(now time.Time) (*Classifier, *metrics.API) {
	m := metrics.NewAPI()
	c := NewClassifier(m, nil)
	c.now = func() time.Time { return now }
	return c, m
}

func TestClassifyStatusRateLimitUsesResetHeader(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c, m := newTestClassifier(now)

	reset := now.Add(17 * time.Minute)
	header := http.Header{}
	header.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		err := c.ClassifyStatus(status, header)
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, KindRateLimited, apiErr.Kind)
		assert.True(t, apiErr.ResetAt.Equal(reset))
		assert.Equal(t, 17*time.Minute, apiErr.RetryAfter())
		assert.True(t, apiErr.Retryable())
	}
	assert.Equal(t, int64(2), m.Snapshot().RateLimited)
}

func TestClassifyStatusRateLimitWithoutHeader(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c, _ := newTestClassifier(now)

	err := c.ClassifyStatus(http.StatusForbidden, http.Header{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, now.Add(DefaultRateLimitWait), apiErr.ResetAt)

	header := http.Header{}
	header.Set("Retry-After", "90")
	err = c.ClassifyStatus(http.StatusTooManyRequests, header)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, now.Add(90*time.Second), apiErr.ResetAt)

	header.Set("X-RateLimit-Reset", "not-a-number")
	err = c.ClassifyStatus(http.StatusTooManyRequests, header)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, now.Add(90*time.Second), apiErr.ResetAt)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      Kind
		retryable bool
	}{
		{http.StatusBadRequest, KindClientError, false},
		{http.StatusUnauthorized, KindClientError, false},
		{http.StatusNotFound, KindClientError, false},
		{http.StatusUnprocessableEntity, KindClientError, false},
		{http.StatusInternalServerError, KindServerError, true},
		{http.StatusBadGateway, KindServerError, true},
		{http.StatusServiceUnavailable, KindServerError, true},
	}
	c, m := newTestClassifier(time.Now())
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			err := c.ClassifyStatus(tt.status, nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Contains(t, err.Error(), "Status: "+strconv.Itoa(tt.status))
		})
	}
	assert.Equal(t, int64(len(tests)), m.Snapshot().Failure)

	assert.NoError(t, c.ClassifyStatus(http.StatusOK, nil))
	assert.NoError(t, c.ClassifyStatus(http.StatusNotModified, nil))
}

func TestClassifyGraphQL(t *testing.T) {
	c, m := newTestClassifier(time.Now())

	assert.NoError(t, c.ClassifyGraphQL(nil))

	err := c.ClassifyGraphQL([]GraphQLError{{Message: "Could not resolve to a User with the login of 'ghost-x'."}})
	assert.Equal(t, KindUserNotFound, KindOf(err))
	assert.False(t, IsRetryable(err))

	err = c.ClassifyGraphQL([]GraphQLError{{Type: "NOT_FOUND", Message: "missing"}})
	assert.Equal(t, KindUserNotFound, KindOf(err))

	err = c.ClassifyGraphQL([]GraphQLError{
		{Message: "Something went wrong"},
		{Message: "timeout resolving field"},
	})
	assert.Equal(t, KindPartialData, KindOf(err))
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "Something went wrong; timeout resolving field")

	assert.Equal(t, int64(3), m.Snapshot().Failure)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	c, _ := newTestClassifier(time.Now())

	tests := []struct {
		name   string
		err    error
		kind   Kind
		reason string
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), KindTimeout, ReasonTimeout},
		{"caller deadline", &url.Error{Op: "Post", URL: "https://api.github.com/graphql", Err: context.DeadlineExceeded}, KindTimeout, ReasonTimeout},
		{"client timeout", &url.Error{Op: "Post", URL: "https://api.github.com/graphql", Err: timeoutError{}}, KindTimeout, ReasonReadTimeout},
		{"read timeout", &net.OpError{Op: "read", Net: "tcp", Err: timeoutError{}}, KindTimeout, ReasonReadTimeout},
		{"connect timeout", &net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}}, KindTimeout, ReasonConnectTimeout},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), KindNetwork, ReasonIO},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.github.com"}, KindNetwork, ReasonNetwork},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindNetwork, ReasonNetwork},
		{"unknown", errors.New("boom"), KindNetwork, ReasonIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ClassifyTransport(tt.err)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.reason, apiErr.Reason)
			assert.True(t, apiErr.Retryable())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassifyTransportPassesThroughClassified(t *testing.T) {
	c, m := newTestClassifier(time.Now())

	original := &APIError{Kind: KindClientError, Message: "bad"}
	assert.Same(t, original, c.ClassifyTransport(original))

	exhausted := &ExhaustedError{Tokens: 1}
	assert.Same(t, exhausted, c.ClassifyTransport(exhausted))

	assert.NoError(t, c.ClassifyTransport(nil))
	assert.Zero(t, m.Snapshot().Failure)
}

func TestClassifyTransportGoGitHubErrors(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c, _ := newTestClassifier(now)

	reset := now.Add(5 * time.Minute)
	rateErr := &gogithub.RateLimitError{
		Rate:     gogithub.Rate{Limit: 5000, Remaining: 0, Reset: gogithub.Timestamp{Time: reset}},
		Response: &http.Response{StatusCode: http.StatusForbidden},
		Message:  "API rate limit exceeded",
	}
	err := c.ClassifyTransport(rateErr)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindRateLimited, apiErr.Kind)
	assert.Equal(t, reset, apiErr.ResetAt)

	retryAfter := 2 * time.Minute
	abuse := &gogithub.AbuseRateLimitError{
		Response:   &http.Response{StatusCode: http.StatusForbidden},
		RetryAfter: &retryAfter,
	}
	err = c.ClassifyTransport(abuse)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindRateLimited, apiErr.Kind)
	assert.Equal(t, "secondary", apiErr.Reason)
	assert.Equal(t, now.Add(retryAfter), apiErr.ResetAt)

	respErr := &gogithub.ErrorResponse{Response: &http.Response{StatusCode: http.StatusBadGateway}}
	err = c.ClassifyTransport(respErr)
	assert.Equal(t, KindServerError, KindOf(err))
	assert.ErrorIs(t, err, respErr)
}

func TestAPIErrorCodes(t *testing.T) {
	assert.Equal(t, "GITHUB_RATE_LIMIT_EXCEEDED", (&APIError{Kind: KindRateLimited}).ErrorCode())
	assert.Equal(t, "GITHUB_USER_NOT_FOUND", (&APIError{Kind: KindUserNotFound}).ErrorCode())
	assert.Equal(t, "GITHUB_PARTIAL_ERROR", (&APIError{Kind: KindPartialData}).ErrorCode())
	assert.Equal(t, "GITHUB_API_TIMEOUT", (&APIError{Kind: KindTimeout}).ErrorCode())
	assert.Equal(t, "GITHUB_API_ERROR", (&APIError{Kind: KindNetwork}).ErrorCode())
	assert.True(t, IsRetryable(errors.New("unclassified")))
	assert.False(t, IsRetryable(nil))
}

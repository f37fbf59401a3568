package github

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/metrics"
	"github.com/sirupsen/logrus"
)

// DefaultRateLimitWait is assumed when a rate-limit response carries no reset header.
const DefaultRateLimitWait = 60 * time.Minute

const userNotFoundMarker = "Could not resolve to a User"

// GraphQLError is one entry of a GraphQL "errors" array
type GraphQLError struct {
	Type    string   `json:"type,omitempty"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

// Classifier maps transport, HTTP and GraphQL failures onto APIError kinds
// and counts them
type Classifier struct {
	metrics *metrics.API
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewClassifier creates a classifier. m may be nil.
func NewClassifier(m *metrics.API, logger logrus.FieldLogger) *Classifier {
	if m == nil {
		m = metrics.NewAPI()
	}
	return &Classifier{
		metrics: m,
		logger:  logging.OrDiscard(logger).WithField("component", "github"),
		now:     time.Now,
	}
}

// Metrics returns the counters the classifier feeds.
func (c *Classifier) Metrics() *metrics.API { return c.metrics }

// ClassifyStatus returns nil for non-error statuses.
func (c *Classifier) ClassifyStatus(status int, header http.Header) error {
	switch {
	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		resetAt := c.parseResetTime(header)
		c.metrics.RecordRateLimited()
		c.logFailure(KindRateLimited, "").
			WithField("status", status).
			WithField("reset_at", resetAt.Format(time.RFC3339)).
			Warn("github rate limit exceeded")
		return &APIError{Kind: KindRateLimited, Status: status, ResetAt: resetAt, now: c.now()}
	case status >= 400 && status < 500:
		c.metrics.RecordFailure()
		c.logFailure(KindClientError, "").WithField("status", status).Error("github client error")
		return &APIError{Kind: KindClientError, Status: status, Message: "Status: " + strconv.Itoa(status)}
	case status >= 500:
		c.metrics.RecordFailure()
		c.logFailure(KindServerError, "").WithField("status", status).Error("github server error")
		return &APIError{Kind: KindServerError, Status: status, Message: "Status: " + strconv.Itoa(status)}
	default:
		return nil
	}
}

// ClassifyGraphQL returns nil for an empty error list.
func (c *Classifier) ClassifyGraphQL(errs []GraphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	joined := strings.Join(messages, "; ")

	c.metrics.RecordFailure()
	for _, e := range errs {
		if strings.Contains(e.Message, userNotFoundMarker) || e.Type == "NOT_FOUND" {
			c.logFailure(KindUserNotFound, "").Warn("github user not found")
			return &APIError{Kind: KindUserNotFound, Message: joined}
		}
	}
	c.logFailure(KindPartialData, "").WithField("errors", joined).Warn("github graphql partial error")
	return &APIError{Kind: KindPartialData, Message: joined}
}

// ClassifyDecode reports a response body that could not be decoded.
func (c *Classifier) ClassifyDecode(what string, err error) error {
	c.metrics.RecordFailure()
	c.logFailure(KindPartialData, "").WithError(err).Warn("github response undecodable")
	return &APIError{Kind: KindPartialData, Message: what, Cause: err}
}

// ClassifyTransport classifies an error returned by the HTTP round trip or
// by go-github. Already classified errors pass through unchanged.
func (c *Classifier) ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) || IsExhausted(err) {
		return err
	}

	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		c.metrics.RecordRateLimited()
		c.logFailure(KindRateLimited, "").Warn("github rate limit exceeded")
		return &APIError{Kind: KindRateLimited, Status: http.StatusForbidden, ResetAt: rateErr.Rate.Reset.Time, Cause: err, now: c.now()}
	}
	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		resetAt := c.now().Add(DefaultRateLimitWait)
		if abuseErr.RetryAfter != nil {
			resetAt = c.now().Add(*abuseErr.RetryAfter)
		}
		c.metrics.RecordRateLimited()
		c.logFailure(KindRateLimited, "secondary").Warn("github secondary rate limit")
		return &APIError{Kind: KindRateLimited, Reason: "secondary", Status: http.StatusForbidden, ResetAt: resetAt, Cause: err, now: c.now()}
	}
	var respErr *gogithub.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		if classified := c.ClassifyStatus(respErr.Response.StatusCode, respErr.Response.Header); classified != nil {
			classified.(*APIError).Cause = err
			return classified
		}
	}

	kind, reason := transportReason(err)
	c.metrics.RecordFailure()
	c.logFailure(kind, reason).WithError(err).Warn("github transport failure")
	return &APIError{Kind: kind, Reason: reason, Cause: err}
}

func transportReason(err error) (Kind, string) {
	var opErr *net.OpError
	isDial := errors.As(err, &opErr) && opErr.Op == "dial"

	var netErr net.Error
	timedOut := errors.As(err, &netErr) && netErr.Timeout()

	// http.Client and ResponseHeaderTimeout expiries also match
	// context.DeadlineExceeded; only a bare caller deadline is a plain timeout.
	var urlErr *url.Error
	hasURL := errors.As(err, &urlErr)
	switch {
	case timedOut && isDial:
		return KindTimeout, ReasonConnectTimeout
	case hasURL && urlErr.Timeout() && urlErr.Err != context.DeadlineExceeded:
		return KindTimeout, ReasonReadTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, ReasonTimeout
	case timedOut:
		return KindTimeout, ReasonReadTimeout
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return KindNetwork, ReasonIO
	}
	var dnsErr *net.DNSError
	if isDial || hasURL || errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return KindNetwork, ReasonNetwork
	}
	return KindNetwork, ReasonIO
}

// parseResetTime reads X-RateLimit-Reset (epoch seconds), then Retry-After
// (seconds), else now+DefaultRateLimitWait.
func (c *Classifier) parseResetTime(header http.Header) time.Time {
	now := c.now()
	if header != nil {
		if v := header.Get("X-RateLimit-Reset"); v != "" {
			if epoch, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return time.Unix(epoch, 0)
			}
		}
		if v := header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
				return now.Add(time.Duration(secs) * time.Second)
			}
		}
	}
	return now.Add(DefaultRateLimitWait)
}

func (c *Classifier) logFailure(kind Kind, reason string) logrus.FieldLogger {
	entry := c.logger.WithField("outcome", "failure").WithField("error_type", kind.String())
	if reason != "" {
		entry = entry.WithField("reason", reason)
	}
	return entry
}

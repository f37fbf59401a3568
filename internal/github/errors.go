package github

import (
	"errors"
	"fmt"
	"time"

	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
)

// Kind is the closed set of classified GitHub API failures
type Kind int

const (
	KindRateLimited Kind = iota + 1
	KindClientError
	KindServerError
	KindUserNotFound
	KindPartialData
	KindTimeout
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindClientError:
		return "CLIENT_ERROR"
	case KindServerError:
		return "SERVER_ERROR"
	case KindUserNotFound:
		return "USER_NOT_FOUND"
	case KindPartialData:
		return "PARTIAL_DATA"
	case KindTimeout:
		return "TIMEOUT"
	case KindNetwork:
		return "NETWORK_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Sub-reasons for transport failures.
const (
	ReasonReadTimeout    = "read_timeout"
	ReasonConnectTimeout = "connect_timeout"
	ReasonTimeout        = "timeout"
	ReasonIO             = "io"
	ReasonNetwork        = "network"
)

// APIError is a classified GitHub API failure
type APIError struct {
	Kind    Kind
	Reason  string
	Status  int
	ResetAt time.Time // set for KindRateLimited
	Message string
	Cause   error

	now time.Time
}

func (e *APIError) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += "(" + e.Reason + ")"
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Cause }

// Retryable reports whether the batch retry policy may retry the call.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindClientError, KindUserNotFound:
		return false
	default:
		return true
	}
}

// ErrorCode returns the stable code for the failure.
func (e *APIError) ErrorCode() string {
	switch e.Kind {
	case KindRateLimited:
		return string(rankerrors.CodeGitHubRateLimitExceeded)
	case KindClientError:
		return string(rankerrors.CodeGitHubClientError)
	case KindServerError:
		return string(rankerrors.CodeGitHubServerError)
	case KindUserNotFound:
		return string(rankerrors.CodeGitHubUserNotFound)
	case KindPartialData:
		return string(rankerrors.CodeGitHubPartialError)
	case KindTimeout:
		return string(rankerrors.CodeGitHubTimeout)
	default:
		return string(rankerrors.CodeGitHubAPIError)
	}
}

// RetryAfter is the wait until the rate limit window resets.
func (e *APIError) RetryAfter() time.Duration {
	if e.Kind != KindRateLimited || e.ResetAt.IsZero() {
		return 0
	}
	now := e.now
	if now.IsZero() {
		now = time.Now()
	}
	if d := e.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ExhaustedError is returned when no token has quota left
type ExhaustedError struct {
	ResetAt    time.Time
	RecoveryIn time.Duration
	Tokens     int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d github tokens exhausted, recovery in %s (at %s)",
		e.Tokens, rankerrors.FormatDuration(e.RecoveryIn), e.ResetAt.Format(time.RFC3339))
}

func (e *ExhaustedError) ErrorCode() string {
	return string(rankerrors.CodeGitHubRateLimitExhaust)
}

func (e *ExhaustedError) RetryAfter() time.Duration {
	return e.RecoveryIn
}

// Retryable is false: there is no quota to retry with.
func (e *ExhaustedError) Retryable() bool { return false }

// IsExhausted reports whether err is or wraps *ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// IsRetryable reports whether err is a retryable classified failure.
// Unclassified errors are treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsExhausted(err) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

// KindOf returns the classified kind of err, or 0.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

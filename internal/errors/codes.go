package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Code is a stable, machine-readable error identifier
type Code string

const (
	CodeGitHubUserNotFound      Code = "GITHUB_USER_NOT_FOUND"
	CodeGitHubPartialError      Code = "GITHUB_PARTIAL_ERROR"
	CodeGitHubRateLimitExceeded Code = "GITHUB_RATE_LIMIT_EXCEEDED"
	CodeGitHubRateLimitExhaust  Code = "GITHUB_RATE_LIMIT_EXHAUSTED"
	CodeGitHubTimeout           Code = "GITHUB_API_TIMEOUT"
	CodeGitHubClientError       Code = "GITHUB_API_CLIENT_ERROR"
	CodeGitHubServerError       Code = "GITHUB_API_SERVER_ERROR"
	CodeGitHubAPIError          Code = "GITHUB_API_ERROR"
	CodeBatchJobFailed          Code = "BATCH_JOB_FAILED"
	CodeBatchStepFailed         Code = "BATCH_STEP_FAILED"
	CodeUserNotFound            Code = "USER_NOT_FOUND"
	CodeUserAlreadyExists       Code = "USER_ALREADY_EXISTS"
	CodeFullScanCooldown        Code = "FULL_SCAN_COOLDOWN"
	CodeDefault                 Code = "DEFAULT_ERROR"
)

// Coded is implemented by errors that carry a stable code
type Coded interface {
	ErrorCode() string
}

// RetryHinted is implemented by errors that know when a retry may succeed
type RetryHinted interface {
	RetryAfter() time.Duration
}

// Describe converts any error into its user-visible structured form.
func Describe(err error) *Error {
	if err == nil {
		return nil
	}

	var structured *Error
	if errors.As(err, &structured) {
		if structured.RetryHint != "" {
			return structured
		}
		// An outer job or step error inherits the hint of what it wraps.
		described := *structured
		if d := retryAfter(err); d > 0 {
			described.WithRetryAfter(d)
		}
		return &described
	}

	e := &Error{
		Type:      ErrorTypeInternal,
		Severity:  SeverityMedium,
		Code:      CodeDefault,
		Message:   err.Error(),
		Context:   make(map[string]interface{}),
		Timestamp: time.Now(),
	}

	var coded Coded
	if errors.As(err, &coded) {
		e.Code = Code(coded.ErrorCode())
		e.Type = typeForCode(e.Code)
		e.Cause = err
	}

	if d := retryAfter(err); d > 0 {
		e.WithRetryAfter(d)
	}

	return e
}

func retryAfter(err error) time.Duration {
	var hinted RetryHinted
	if errors.As(err, &hinted) {
		return hinted.RetryAfter()
	}
	return 0
}

func typeForCode(code Code) ErrorType {
	switch {
	case code == CodeGitHubRateLimitExceeded || code == CodeGitHubRateLimitExhaust:
		return ErrorTypeRateLimit
	case code == CodeUserNotFound:
		return ErrorTypeNotFound
	case strings.HasPrefix(string(code), "GITHUB_"):
		return ErrorTypeExternal
	case strings.HasPrefix(string(code), "BATCH_"):
		return ErrorTypeBatch
	default:
		return ErrorTypeInternal
	}
}

// FormatDuration renders d rounded up to whole seconds, e.g. "1h5m" or "12m30s".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	secs := int64((d + time.Second - 1) / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60

	var sb strings.Builder
	if h > 0 {
		fmt.Fprintf(&sb, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&sb, "%dm", m)
	}
	if s > 0 || sb.Len() == 0 {
		fmt.Fprintf(&sb, "%ds", s)
	}
	return sb.String()
}

package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid input data
	ErrorTypeValidation
	// Database errors - database connection or query failures
	ErrorTypeDatabase
	// External errors - GitHub API failures
	ErrorTypeExternal
	// RateLimit errors - quota exhausted on one or all credentials
	ErrorTypeRateLimit
	// Batch errors - job or step failures
	ErrorTypeBatch
	// NotFound errors - unknown user or record
	ErrorTypeNotFound
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Error is the structured, user-visible form of a failure
type Error struct {
	Type      ErrorType
	Severity  Severity
	Code      Code
	Message   string
	RetryHint string
	Cause     error
	Context   map[string]interface{}
	Timestamp time.Time
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryAfter sets a human-readable retry hint
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryHint = "retry after " + FormatDuration(d)
	return e
}

// Is matches another *Error of the same code, or of the same type when the
// target carries no code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:      errType,
		Severity:  severity,
		Code:      CodeDefault,
		Message:   message,
		Context:   make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	e := New(errType, severity, message)
	e.Cause = err
	return e
}

// WithCode sets the stable code
func (e *Error) WithCode(code Code) *Error {
	e.Code = code
	return e
}

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// DatabaseError wraps a database error
func DatabaseError(err error, message string) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, message)
}

// NotFoundf creates a not-found error
func NotFoundf(format string, args ...interface{}) *Error {
	return New(ErrorTypeNotFound, SeverityLow, fmt.Sprintf(format, args...)).WithCode(CodeUserNotFound)
}

// BatchError wraps a job or step failure
func BatchError(err error, code Code, message string) *Error {
	e := Wrap(err, ErrorTypeBatch, SeverityHigh, message)
	if e != nil {
		e.Code = code
	}
	return e
}

// GetCode returns the stable code of any error
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	return Describe(err).Code
}

// Package batch runs the scheduled score and ranking jobs as chunked steps
// over the user table.
package batch

import (
	"context"
	"errors"

	"github.com/rohankatakam/gitranker/internal/activity"
	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/github"
	"github.com/rohankatakam/gitranker/internal/models"
)

// OutcomeKind tells the step what to do with a processed item
type OutcomeKind int

const (
	OutcomeOk OutcomeKind = iota
	OutcomeSkip
	OutcomeRetry
	OutcomeAbort
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOk:
		return "OK"
	case OutcomeSkip:
		return "SKIP"
	case OutcomeRetry:
		return "RETRY"
	case OutcomeAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// Item is a processed user ready to be written
type Item struct {
	User     *models.User
	Logs     []*models.ActivityLog
	Cost     int
	Strategy activity.Kind
}

// Outcome is the result of processing one user
type Outcome struct {
	Kind   OutcomeKind
	Item   *Item
	Reason string
	Err    error
	// Retryable marks a skip that a later run may recover from.
	Retryable bool
}

func Ok(item *Item) Outcome { return Outcome{Kind: OutcomeOk, Item: item} }

func Skip(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeSkip, Reason: reason, Err: err}
}

func Retry(err error) Outcome { return Outcome{Kind: OutcomeRetry, Err: err} }

func Abort(err error) Outcome { return Outcome{Kind: OutcomeAbort, Err: err} }

// Classify maps a processing error onto an outcome. Exhausted credentials
// abort the step, non-retryable GitHub failures are skipped at once and
// everything else is retried.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Kind: OutcomeOk}
	case github.IsExhausted(err), errors.Is(err, context.Canceled):
		return Abort(err)
	case github.IsRetryable(err):
		return Retry(err)
	default:
		return Skip(string(rankerrors.GetCode(err)), err)
	}
}

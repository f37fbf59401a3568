package logging

import (
	"github.com/sirupsen/logrus"
)

// Event names a domain occurrence emitted as a structured log line
type Event string

const (
	EventBatchStarted        Event = "BATCH_STARTED"
	EventBatchProgress       Event = "BATCH_PROGRESS"
	EventBatchCompleted      Event = "BATCH_COMPLETED"
	EventBatchItemSkipped    Event = "BATCH_ITEM_SKIPPED"
	EventRankingRecalculated Event = "RANKING_RECALCULATED"
	EventTokenRotated        Event = "TOKEN_ROTATED"
	EventTokenLow            Event = "TOKEN_LOW"
	EventTokensExhausted     Event = "TOKENS_EXHAUSTED"
	EventUserRegistered      Event = "USER_REGISTERED"
	EventUserRefreshed       Event = "USER_REFRESHED"
	EventScoreChanged        Event = "SCORE_CHANGED"
	EventTierPromoted        Event = "TIER_PROMOTED"
)

// Fields is an alias so callers need not import logrus for event payloads
type Fields = logrus.Fields

// Emit writes event at info level. It never fails.
func Emit(logger logrus.FieldLogger, event Event, fields Fields) {
	OrDiscard(logger).WithFields(fields).WithField("event", string(event)).Info(string(event))
}

// EmitWarn writes event at warn level.
func EmitWarn(logger logrus.FieldLogger, event Event, fields Fields) {
	OrDiscard(logger).WithFields(fields).WithField("event", string(event)).Warn(string(event))
}

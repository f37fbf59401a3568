package github

import "time"

// DefaultQuota is GitHub's hourly point budget per token.
const DefaultQuota = 5000

// TokenState tracks one credential's remaining quota. It is not safe for
// concurrent use; Pool serializes access.
type TokenState struct {
	value     string
	remaining int
	resetAt   time.Time
}

func newTokenState(value string, now time.Time) *TokenState {
	return &TokenState{
		value:     value,
		remaining: DefaultQuota,
		resetAt:   now.Add(time.Hour),
	}
}

// available refills the quota once resetAt has passed, then checks headroom.
func (s *TokenState) available(now time.Time, threshold int) bool {
	if now.After(s.resetAt) {
		s.remaining = DefaultQuota
	}
	return s.remaining > threshold
}

func (s *TokenState) update(remaining int, resetAt time.Time) {
	s.remaining = remaining
	s.resetAt = resetAt
}

// Remaining returns the last observed quota.
func (s *TokenState) Remaining() int { return s.remaining }

// ResetAt returns when the quota window closes.
func (s *TokenState) ResetAt() time.Time { return s.resetAt }

// maskToken keeps the last four characters for logs.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

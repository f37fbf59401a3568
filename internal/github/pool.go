package github

import (
	"fmt"
	"sync"
	"time"

	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/sirupsen/logrus"
)

// DefaultThreshold is the quota headroom kept free for in-flight requests.
const DefaultThreshold = 100

// Pool rotates between GitHub tokens, preferring the last one that worked
type Pool struct {
	mu        sync.Mutex
	tokens    []*TokenState
	current   int
	threshold int
	now       func() time.Time
	logger    logrus.FieldLogger

	// OnRotate, if set, is called with the old and new index on rotation.
	// It runs with the pool lock held and must not call back into the pool.
	OnRotate func(from, to int)
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// WithLogger sets the pool logger.
func WithLogger(logger logrus.FieldLogger) PoolOption {
	return func(p *Pool) { p.logger = logging.OrDiscard(logger) }
}

// NewPool creates a pool over tokens. threshold is the minimum remaining
// quota (exclusive) for a token to be handed out.
func NewPool(tokens []string, threshold int, opts ...PoolOption) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("token pool: no tokens")
	}
	if threshold < 0 {
		return nil, fmt.Errorf("token pool: negative threshold %d", threshold)
	}

	p := &Pool{
		threshold: threshold,
		now:       time.Now,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	now := p.now()
	for _, t := range tokens {
		p.tokens = append(p.tokens, newTokenState(t, now))
	}
	return p, nil
}

// Size returns the number of tokens.
func (p *Pool) Size() int {
	return len(p.tokens)
}

// Acquire returns a usable token, scanning circularly from the last used
// index. It returns *ExhaustedError when every token is under threshold.
func (p *Pool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	start := p.current
	size := len(p.tokens)

	for i := 0; i < size; i++ {
		idx := (start + i) % size
		state := p.tokens[idx]
		if !state.available(now, p.threshold) {
			continue
		}
		if idx != start {
			p.current = idx
			logging.Emit(p.logger, logging.EventTokenRotated, logging.Fields{
				"from": start,
				"to":   idx,
			})
			if p.OnRotate != nil {
				p.OnRotate(start, idx)
			}
		}
		return state.value, nil
	}

	resetAt := p.earliestResetLocked()
	err := &ExhaustedError{ResetAt: resetAt, RecoveryIn: resetAt.Sub(now), Tokens: size}
	logging.EmitWarn(p.logger, logging.EventTokensExhausted, logging.Fields{
		"tokens":      size,
		"reset_at":    resetAt.Format(time.RFC3339),
		"recovery_in": err.RecoveryIn.Round(time.Second).String(),
	})
	return "", err
}

func (p *Pool) earliestResetLocked() time.Time {
	earliest := p.tokens[0].resetAt
	for _, t := range p.tokens[1:] {
		if t.resetAt.Before(earliest) {
			earliest = t.resetAt
		}
	}
	return earliest
}

// Update records quota headers observed on a response for token. Unknown
// tokens are ignored. A zero resetAt keeps the current window when it is
// still open, otherwise the window is assumed to close in an hour.
func (p *Pool) Update(token string, remaining int, resetAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for idx, t := range p.tokens {
		if t.value != token {
			continue
		}
		if resetAt.IsZero() {
			resetAt = t.resetAt
			if now := p.now(); !resetAt.After(now) {
				resetAt = now.Add(DefaultRateLimitWait)
			}
		}
		t.update(remaining, resetAt)
		if remaining <= p.threshold {
			logging.EmitWarn(p.logger, logging.EventTokenLow, logging.Fields{
				"token":     maskToken(token),
				"index":     idx,
				"remaining": remaining,
				"threshold": p.threshold,
				"reset_at":  resetAt.Format(time.RFC3339),
			})
		}
		return
	}
}

// TokenStatus is a read-only view of one token's quota
type TokenStatus struct {
	Index     int       `json:"index" yaml:"index"`
	Token     string    `json:"token" yaml:"token"`
	Remaining int       `json:"remaining" yaml:"remaining"`
	ResetAt   time.Time `json:"reset_at" yaml:"reset_at"`
	Current   bool      `json:"current" yaml:"current"`
}

// Status reports the masked state of every token.
func (p *Pool) Status() []TokenStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]TokenStatus, len(p.tokens))
	for i, t := range p.tokens {
		out[i] = TokenStatus{
			Index:     i,
			Token:     maskToken(t.value),
			Remaining: t.remaining,
			ResetAt:   t.resetAt,
			Current:   i == p.current,
		}
	}
	return out
}

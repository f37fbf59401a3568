package batch

import (
	"math"
	"time"
)

// RetryPolicy bounds per-item retries
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy is 3 attempts backing off 100ms, 200ms, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
	}
}

// Backoff is the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Settings configure a chunk step
type Settings struct {
	ChunkSize int
	SkipLimit int
	Retry     RetryPolicy
}

// DefaultSettings returns chunks of 100 with a skip limit of 100.
func DefaultSettings() Settings {
	return Settings{
		ChunkSize: 100,
		SkipLimit: 100,
		Retry:     DefaultRetryPolicy(),
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.ChunkSize <= 0 {
		s.ChunkSize = def.ChunkSize
	}
	if s.SkipLimit < 0 {
		s.SkipLimit = def.SkipLimit
	}
	if s.Retry.MaxAttempts <= 0 {
		s.Retry = def.Retry
	}
	return s
}

package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// API counts GitHub API outcomes. All methods are safe for concurrent use.
type API struct {
	success     atomic.Int64
	failure     atomic.Int64
	rateLimited atomic.Int64
	cost        atomic.Int64

	mu      sync.Mutex
	latency Timer
}

// NewAPI creates zeroed API counters
func NewAPI() *API {
	return &API{}
}

func (a *API) RecordSuccess() { a.success.Add(1) }
func (a *API) RecordFailure() { a.failure.Add(1) }
func (a *API) RecordRateLimited() { a.rateLimited.Add(1) }

// RecordCost adds the GraphQL point cost reported by a response.
func (a *API) RecordCost(points int) {
	if points > 0 {
		a.cost.Add(int64(points))
	}
}

// ObserveLatency records the duration of one API call.
func (a *API) ObserveLatency(d time.Duration) {
	a.mu.Lock()
	a.latency.Observe(d)
	a.mu.Unlock()
}

// APISnapshot is a point-in-time copy of the API counters
type APISnapshot struct {
	Success     int64         `json:"success" yaml:"success"`
	Failure     int64         `json:"failure" yaml:"failure"`
	RateLimited int64         `json:"rate_limited" yaml:"rate_limited"`
	Cost        int64         `json:"cost" yaml:"cost"`
	Calls       int64         `json:"calls" yaml:"calls"`
	MeanLatency time.Duration `json:"mean_latency" yaml:"mean_latency"`
	MaxLatency  time.Duration `json:"max_latency" yaml:"max_latency"`
}

// Snapshot copies the current counter values.
func (a *API) Snapshot() APISnapshot {
	a.mu.Lock()
	lat := a.latency
	a.mu.Unlock()
	return APISnapshot{
		Success:     a.success.Load(),
		Failure:     a.failure.Load(),
		RateLimited: a.rateLimited.Load(),
		Cost:        a.cost.Load(),
		Calls:       lat.Count,
		MeanLatency: lat.Mean(),
		MaxLatency:  lat.Max,
	}
}

// Timer aggregates observed durations
type Timer struct {
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Observe adds one sample. Not safe for concurrent use on its own.
func (t *Timer) Observe(d time.Duration) {
	t.Count++
	t.Total += d
	if d > t.Max {
		t.Max = d
	}
}

// Mean returns the average sample, or zero without samples.
func (t Timer) Mean() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

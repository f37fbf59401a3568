package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Batch counts job-level outcomes for the batch pipeline
type Batch struct {
	jobsCompleted  atomic.Int64
	jobsFailed     atomic.Int64
	itemsProcessed atomic.Int64
	itemsSkipped   atomic.Int64

	mu       sync.Mutex
	duration map[string]*Timer
}

// NewBatch creates zeroed batch counters
func NewBatch() *Batch {
	return &Batch{duration: make(map[string]*Timer)}
}

func (b *Batch) RecordJobCompleted() { b.jobsCompleted.Add(1) }
func (b *Batch) RecordJobFailed() { b.jobsFailed.Add(1) }
func (b *Batch) RecordItemProcessed(n int) { b.itemsProcessed.Add(int64(n)) }
func (b *Batch) RecordItemSkipped() { b.itemsSkipped.Add(1) }

// ObserveJobDuration records how long one run of job took.
func (b *Batch) ObserveJobDuration(job string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.duration[job]
	if !ok {
		t = &Timer{}
		b.duration[job] = t
	}
	t.Observe(d)
}

// BatchSnapshot is a point-in-time copy of the batch counters
type BatchSnapshot struct {
	JobsCompleted  int64            `json:"jobs_completed" yaml:"jobs_completed"`
	JobsFailed     int64            `json:"jobs_failed" yaml:"jobs_failed"`
	ItemsProcessed int64            `json:"items_processed" yaml:"items_processed"`
	ItemsSkipped   int64            `json:"items_skipped" yaml:"items_skipped"`
	Durations      map[string]Timer `json:"durations" yaml:"durations"`
}

// Snapshot copies the current counter values.
func (b *Batch) Snapshot() BatchSnapshot {
	b.mu.Lock()
	durations := make(map[string]Timer, len(b.duration))
	for k, v := range b.duration {
		durations[k] = *v
	}
	b.mu.Unlock()
	return BatchSnapshot{
		JobsCompleted:  b.jobsCompleted.Load(),
		JobsFailed:     b.jobsFailed.Load(),
		ItemsProcessed: b.itemsProcessed.Load(),
		ItemsSkipped:   b.itemsSkipped.Load(),
		Durations:      durations,
	}
}

package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAPICountersConcurrent(t *testing.T) {
	api := NewAPI()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			api.RecordSuccess()
			api.RecordCost(2)
			api.ObserveLatency(10 * time.Millisecond)
		}()
	}
	wg.Wait()
	api.RecordFailure()
	api.RecordRateLimited()
	api.RecordCost(-5)

	snap := api.Snapshot()
	assert.Equal(t, int64(50), snap.Success)
	assert.Equal(t, int64(1), snap.Failure)
	assert.Equal(t, int64(1), snap.RateLimited)
	assert.Equal(t, int64(100), snap.Cost)
	assert.Equal(t, int64(50), snap.Calls)
	assert.Equal(t, 10*time.Millisecond, snap.MeanLatency)
}

func TestBatchSnapshot(t *testing.T) {
	b := NewBatch()
	b.RecordJobCompleted()
	b.RecordJobFailed()
	b.RecordItemProcessed(7)
	b.RecordItemSkipped()
	b.ObserveJobDuration("daily", time.Second)
	b.ObserveJobDuration("daily", 3*time.Second)

	snap := b.Snapshot()
	assert.Equal(t, int64(1), snap.JobsCompleted)
	assert.Equal(t, int64(1), snap.JobsFailed)
	assert.Equal(t, int64(7), snap.ItemsProcessed)
	assert.Equal(t, int64(1), snap.ItemsSkipped)
	assert.Equal(t, int64(2), snap.Durations["daily"].Count)
	assert.Equal(t, 2*time.Second, snap.Durations["daily"].Mean())
	assert.Equal(t, 3*time.Second, snap.Durations["daily"].Max)
}

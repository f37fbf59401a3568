package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/rohankatakam/gitranker/internal/github"
	"github.com/rohankatakam/gitranker/internal/jobstore"
	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/rohankatakam/gitranker/internal/models"
	"github.com/rohankatakam/gitranker/internal/storage"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	users []*models.User
	calls []int64
}

func newFakeReader(n int) *fakeReader {
	r := &fakeReader{}
	for i := 1; i <= n; i++ {
		r.users = append(r.users, &models.User{ID: int64(i), Username: fmt.Sprintf("user%d", i)})
	}
	return r
}

func (r *fakeReader) CountAll(ctx context.Context) (int64, error) {
	return int64(len(r.users)), nil
}

func (r *fakeReader) ListUsers(ctx context.Context, afterID int64, limit int) ([]*models.User, error) {
	r.calls = append(r.calls, afterID)
	var out []*models.User
	for _, u := range r.users {
		if u.ID > afterID && len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

// scriptProcessor replays per-user outcomes; unscripted users succeed.
type scriptProcessor struct {
	mu     sync.Mutex
	script map[string][]Outcome
	calls  map[string]int
	hook   func(user *models.User)
}

func newScriptProcessor() *scriptProcessor {
	return &scriptProcessor{script: make(map[string][]Outcome), calls: make(map[string]int)}
}

func (p *scriptProcessor) Process(ctx context.Context, user *models.User) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[user.Username]++
	if p.hook != nil {
		p.hook(user)
	}
	if seq := p.script[user.Username]; len(seq) > 0 {
		p.script[user.Username] = seq[1:]
		if seq[0].Kind != OutcomeOk {
			return seq[0]
		}
	}
	return Ok(&Item{User: user, Cost: 1})
}

type fakeWriter struct {
	failing map[string]error
	batches [][]string
}

func (w *fakeWriter) Write(ctx context.Context, items []*Item) error {
	var names []string
	for _, item := range items {
		if err, ok := w.failing[item.User.Username]; ok {
			return err
		}
		names = append(names, item.User.Username)
	}
	w.batches = append(w.batches, names)
	return nil
}

type fakeSink struct {
	failures []models.BatchFailure
}

func (s *fakeSink) Enqueue(ctx context.Context, f models.BatchFailure) error {
	s.failures = append(s.failures, f)
	return nil
}

func testSettings(chunk, skipLimit int) Settings {
	s := DefaultSettings()
	s.ChunkSize = chunk
	s.SkipLimit = skipLimit
	return s
}

func newTestStep(reader Reader, proc Processor, writer Writer, settings Settings, listeners ...Listener) (*ChunkStep, *[]time.Duration) {
	step := NewChunkStep(ScoreStepName, reader, proc, writer, settings, nil, listeners...)
	var slept []time.Duration
	step.sleep = func(d time.Duration) { slept = append(slept, d) }
	return step, &slept
}

func TestChunkStepProcessesAllChunks(t *testing.T) {
	logger, hook := test.NewNullLogger()
	reader := newFakeReader(25)
	writer := &fakeWriter{}
	cost := NewCostListener()
	step, _ := newTestStep(reader, newScriptProcessor(), writer, testSettings(10, 100),
		cost, NewProgressListener(logger, 10))

	exec, err := step.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, jobstore.StatusCompleted, exec.Status)
	assert.Equal(t, 25, exec.Read)
	assert.Equal(t, 25, exec.Written)
	assert.Equal(t, 25, exec.APICost)
	assert.Equal(t, []int64{0, 10, 20, 25}, reader.calls)
	assert.Len(t, writer.batches, 3)
	assert.Equal(t, 25, cost.Total())
	assert.Equal(t, 25, cost.Step(ScoreStepName))

	var percents []float64
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == string(logging.EventBatchProgress) {
			percents = append(percents, entry.Data["percent"].(float64))
		}
	}
	assert.Equal(t, []float64{40, 80, 100}, percents)
}

func TestChunkStepRetriesThenSucceeds(t *testing.T) {
	proc := newScriptProcessor()
	transient := &github.APIError{Kind: github.KindServerError, Status: 502}
	proc.script["user2"] = []Outcome{Retry(transient), Retry(transient)}

	step, slept := newTestStep(newFakeReader(3), proc, &fakeWriter{}, testSettings(10, 100))
	exec, err := step.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, proc.calls["user2"])
	assert.Equal(t, 2, exec.Retries)
	assert.Equal(t, 3, exec.Written)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestChunkStepRetryExhaustionSkipsAsRetryable(t *testing.T) {
	proc := newScriptProcessor()
	transient := &github.APIError{Kind: github.KindTimeout}
	proc.script["user1"] = []Outcome{Retry(transient), Retry(transient), Retry(transient)}
	sink := &fakeSink{}

	step, _ := newTestStep(newFakeReader(2), proc, &fakeWriter{}, testSettings(10, 100),
		NewSkipRecorder(sink, DailyJobName, nil, nil))
	exec, err := step.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, proc.calls["user1"])
	assert.Equal(t, 1, exec.Skipped)
	assert.Equal(t, 1, exec.Written)
	require.Len(t, sink.failures, 1)
	f := sink.failures[0]
	assert.Equal(t, "user1", f.TargetID)
	assert.Equal(t, DailyJobName, f.JobName)
	assert.Equal(t, models.PhaseProcess, f.Phase)
	assert.True(t, f.Retryable)
	assert.Equal(t, string(rankerrors.CodeGitHubTimeout), f.ErrorType)
}

func TestChunkStepSkipLimit(t *testing.T) {
	proc := newScriptProcessor()
	notFound := &github.APIError{Kind: github.KindUserNotFound}
	proc.script["user1"] = []Outcome{Classify(notFound)}
	proc.script["user2"] = []Outcome{Classify(notFound)}
	sink := &fakeSink{}

	step, _ := newTestStep(newFakeReader(4), proc, &fakeWriter{}, testSettings(10, 1),
		NewSkipRecorder(sink, DailyJobName, nil, nil))
	exec, err := step.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, rankerrors.CodeBatchStepFailed, rankerrors.GetCode(err))
	assert.Equal(t, jobstore.StatusFailed, exec.Status)
	assert.Equal(t, 2, exec.Skipped)
	assert.NotContains(t, proc.calls, "user3")
	require.Len(t, sink.failures, 2)
	assert.False(t, sink.failures[0].Retryable)
}

func TestChunkStepAbortsOnExhaustedCredentials(t *testing.T) {
	proc := newScriptProcessor()
	proc.script["user2"] = []Outcome{Classify(&github.ExhaustedError{Tokens: 2, RecoveryIn: time.Minute})}
	writer := &fakeWriter{}

	step, _ := newTestStep(newFakeReader(5), proc, writer, testSettings(10, 100))
	exec, err := step.Execute(context.Background())
	require.Error(t, err)

	assert.True(t, github.IsExhausted(err))
	assert.Equal(t, jobstore.StatusFailed, exec.Status)
	assert.Equal(t, 1, proc.calls["user2"])
	assert.NotContains(t, proc.calls, "user3")
	assert.Empty(t, writer.batches)
}

func TestChunkStepStopsBetweenChunksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := newScriptProcessor()
	proc.hook = func(user *models.User) {
		if user.ID == 2 {
			cancel()
		}
	}
	writer := &fakeWriter{}

	step, _ := newTestStep(newFakeReader(10), proc, writer, testSettings(4, 100))
	exec, err := step.Execute(ctx)
	require.Error(t, err)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 4, exec.Read)
	assert.Equal(t, 4, exec.Written)
	assert.Equal(t, [][]string{{"user1", "user2", "user3", "user4"}}, writer.batches)
}

func TestChunkStepWriteFallsBackToSingleItems(t *testing.T) {
	writer := &fakeWriter{failing: map[string]error{
		"user3": fmt.Errorf("save user 3: %w", storage.ErrNotFound),
	}}
	sink := &fakeSink{}

	step, _ := newTestStep(newFakeReader(5), newScriptProcessor(), writer, testSettings(10, 100),
		NewSkipRecorder(sink, DailyJobName, nil, nil))
	exec, err := step.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, exec.Written)
	assert.Equal(t, 1, exec.Skipped)
	assert.Len(t, writer.batches, 4)
	require.Len(t, sink.failures, 1)
	assert.Equal(t, models.PhaseWrite, sink.failures[0].Phase)
	assert.False(t, sink.failures[0].Retryable)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{"nil", nil, OutcomeOk},
		{"exhausted", fmt.Errorf("scan: %w", &github.ExhaustedError{Tokens: 1}), OutcomeAbort},
		{"canceled", context.Canceled, OutcomeAbort},
		{"rate limited", &github.APIError{Kind: github.KindRateLimited}, OutcomeRetry},
		{"server error", &github.APIError{Kind: github.KindServerError}, OutcomeRetry},
		{"partial data", &github.APIError{Kind: github.KindPartialData}, OutcomeRetry},
		{"unclassified", errors.New("boom"), OutcomeRetry},
		{"user not found", &github.APIError{Kind: github.KindUserNotFound}, OutcomeSkip},
		{"client error", &github.APIError{Kind: github.KindClientError, Status: 422}, OutcomeSkip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Kind)
		})
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 30*time.Second, p.Backoff(20))
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 100.0, Progress{}.Percent())
	assert.Equal(t, 50.0, Progress{Processed: 5, Total: 10}.Percent())
	assert.Equal(t, 100.0, Progress{Processed: 12, Total: 10}.Percent())
}

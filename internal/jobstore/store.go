// Package jobstore persists batch job executions in a local bbolt file.
package jobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const bucketName = "job_executions"

// ErrNotFound is returned when no execution has the requested id
var ErrNotFound = errors.New("job execution not found")

// Status of a job or step execution
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusNoop      Status = "NOOP"
)

// StepExecution records the outcome of one step within a job
type StepExecution struct {
	Name     string        `json:"name" yaml:"name"`
	Status   Status        `json:"status" yaml:"status"`
	Read     int           `json:"read" yaml:"read"`
	Written  int           `json:"written" yaml:"written"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Retries  int           `json:"retries" yaml:"retries"`
	APICost  int           `json:"api_cost" yaml:"api_cost"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// JobExecution is one run of a named job
type JobExecution struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Status    Status          `json:"status" yaml:"status"`
	StartedAt time.Time       `json:"started_at" yaml:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Steps     []StepExecution `json:"steps" yaml:"steps"`
	Error     string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewExecution starts a fresh execution record for job name.
func NewExecution(name string, startedAt time.Time) *JobExecution {
	return &JobExecution{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusStarted,
		StartedAt: startedAt.UTC(),
	}
}

// Finish closes the execution with status and an optional error.
func (e *JobExecution) Finish(status Status, endedAt time.Time, err error) {
	ended := endedAt.UTC()
	e.Status = status
	e.EndedAt = &ended
	if err != nil {
		e.Error = err.Error()
	}
}

// Duration returns the elapsed time of a finished execution, zero otherwise.
func (e *JobExecution) Duration() time.Duration {
	if e.EndedAt == nil {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// Totals sums the step counters.
func (e *JobExecution) Totals() StepExecution {
	var t StepExecution
	for _, s := range e.Steps {
		t.Read += s.Read
		t.Written += s.Written
		t.Skipped += s.Skipped
		t.Retries += s.Retries
		t.APICost += s.APICost
		t.Duration += s.Duration
	}
	return t
}

// Store is a bbolt-backed execution history
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the history file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create job store directory %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open job store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the file lock
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces an execution.
func (s *Store) Save(exec *JobExecution) error {
	if exec.ID == "" {
		return fmt.Errorf("job execution has no id")
	}
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to encode job execution: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(exec.ID), data)
	})
}

// Get loads one execution by id.
func (s *Store) Get(id string) (*JobExecution, error) {
	var exec *JobExecution
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		exec = &JobExecution{}
		return json.Unmarshal(data, exec)
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// List returns executions newest first, optionally filtered by job name.
// limit <= 0 returns all of them.
func (s *Store) List(name string, limit int) ([]*JobExecution, error) {
	var execs []*JobExecution
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			exec := &JobExecution{}
			if err := json.Unmarshal(v, exec); err != nil {
				return fmt.Errorf("corrupt job execution %s: %w", k, err)
			}
			if name == "" || exec.Name == name {
				execs = append(execs, exec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(execs, func(i, j int) bool {
		return execs[i].StartedAt.After(execs[j].StartedAt)
	})
	if limit > 0 && len(execs) > limit {
		execs = execs[:limit]
	}
	return execs, nil
}

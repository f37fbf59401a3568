package models

import "time"

// BatchPhase is the pipeline stage an item failed in
type BatchPhase string

const (
	PhaseRead    BatchPhase = "READ"
	PhaseProcess BatchPhase = "PROCESS"
	PhaseWrite   BatchPhase = "WRITE"
)

// MaxFailureMessageLength bounds persisted error messages.
const MaxFailureMessageLength = 1000

// BatchFailure records one skipped item of a batch job
type BatchFailure struct {
	ID           int64      `json:"id" yaml:"id"`
	JobName      string     `json:"job_name" yaml:"job_name"`
	TargetID     string     `json:"target_id" yaml:"target_id"`
	ErrorType    string     `json:"error_type" yaml:"error_type"`
	ErrorMessage string     `json:"error_message" yaml:"error_message"`
	Phase        BatchPhase `json:"phase" yaml:"phase"`
	Retryable    bool       `json:"retryable" yaml:"retryable"`
	RetryCount   int        `json:"retry_count" yaml:"retry_count"`
	CreatedAt    time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" yaml:"updated_at"`
}

// TruncateMessage shortens msg to MaxFailureMessageLength runes.
func TruncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxFailureMessageLength {
		return msg
	}
	return string(runes[:MaxFailureMessageLength])
}

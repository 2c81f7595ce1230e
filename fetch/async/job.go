// Package async runs Fitbit fetcher scripts as background jobs with live
// status, progress parsing, and cancellation.
package async

import (
	"time"
)

// JobKind distinguishes the two subprocess pipelines the server drives.
type JobKind string

const (
	JobKindFetch     JobKind = "fetch"
	JobKindAuthorize JobKind = "authorize"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimeout   JobStatus = "timeout"
	JobStatusError     JobStatus = "error"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusTimeout, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether a job in this status can never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimeout,
		JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a cancel request is valid for this status.
func (s JobStatus) Cancellable() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// Job represents one fetch or authorization run. The JSON field names match
// what the dashboard polls on /api/fetch-status and /api/authorize-status.
type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Profile     string     `json:"profile"`
	Status      JobStatus  `json:"status"`
	CreatedTime time.Time  `json:"created_time"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	ReturnCode  *int       `json:"return_code,omitempty"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Progress, derived from pipeline output lines (fetch jobs only)
	Progress      float64 `json:"progress"`
	Message       string  `json:"message,omitempty"`
	CurrentScript string  `json:"current_script,omitempty"`
	CurrentCSV    string  `json:"current_csv,omitempty"`
	StartDate     string  `json:"start_date,omitempty"`
	LastDate      string  `json:"last_date,omitempty"`

	// Throttling state surfaced when the Fitbit API rate-limits the fetcher
	ThrottleActive bool   `json:"throttle_active"`
	ThrottleReason string `json:"throttle_reason,omitempty"`
	ThrottleMMSS   string `json:"throttle_mmss,omitempty"`
	ThrottleUntil  string `json:"throttle_until,omitempty"`
}

// NewJob creates a queued job record.
func NewJob(id string, kind JobKind, profile string) *Job {
	return &Job{
		ID:          id,
		Kind:        kind,
		Profile:     profile,
		Status:      JobStatusQueued,
		CreatedTime: time.Now(),
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartTime = &now
}

// ResetProgress clears progress and throttle state so a polling client
// never sees stale values from a previous attempt.
func (j *Job) ResetProgress() {
	j.Progress = 0.0
	j.Message = "Preparing fetch"
	j.CurrentScript = ""
	j.CurrentCSV = ""
	j.StartDate = ""
	j.LastDate = ""
	j.ThrottleActive = false
	j.ThrottleReason = ""
	j.ThrottleMMSS = ""
	j.ThrottleUntil = ""
}

// Complete finalizes the job from a subprocess exit: zero means completed,
// anything else means failed. Captured output is attached either way.
func (j *Job) Complete(returnCode int, output string) {
	now := time.Now()
	if returnCode == 0 {
		j.Status = JobStatusCompleted
	} else {
		j.Status = JobStatusFailed
	}
	j.EndTime = &now
	j.ReturnCode = &returnCode
	j.Output = output
	j.Error = ""
}

// Fail marks the job as failed with an operator-facing message.
func (j *Job) Fail(message string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.EndTime = &now
	j.Error = message
}

// Timeout marks the job as exceeding its execution bound.
func (j *Job) Timeout(message string) {
	now := time.Now()
	j.Status = JobStatusTimeout
	j.EndTime = &now
	j.Error = message
}

// MarkError records an internal failure that is neither a script exit nor
// a timeout (spawn failures, filesystem errors).
func (j *Job) MarkError(message string) {
	now := time.Now()
	j.Status = JobStatusError
	j.EndTime = &now
	j.Error = message
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.EndTime = &now
	j.Error = reason
}

// Clone returns a copy safe to hand to HTTP handlers and subscribers while
// the registry keeps mutating the original.
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

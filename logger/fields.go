package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across fitbaus.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobID   = "job_id"
	FieldProfile = "profile"
	FieldKind    = "kind"

	// Fetch progress
	FieldScript   = "script"
	FieldCSV      = "csv"
	FieldProgress = "progress"
	FieldStatus   = "status"

	// Components
	FieldComponent = "component"

	// Operations
	FieldMethod = "method"
	FieldPath   = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"
)

// WithJob returns a logger with the job id attached as a structured field.
// Handlers and workers operating on one job should log through this so every
// line carries the id.
func WithJob(base *zap.SugaredLogger, jobID string) *zap.SugaredLogger {
	return base.With(FieldJobID, jobID)
}

// WithProfile returns a logger with the profile name attached.
func WithProfile(base *zap.SugaredLogger, profile string) *zap.SugaredLogger {
	return base.With(FieldProfile, profile)
}

package async

import (
	"fmt"
	"strings"
)

// ErrorCode represents the classification of a job failure
type ErrorCode string

const (
	ErrorCodeTokenExpired   ErrorCode = "token_expired"
	ErrorCodeAuthRequired   ErrorCode = "authorization_required"
	ErrorCodeProfileMissing ErrorCode = "profile_missing"
	ErrorCodeScriptFailure  ErrorCode = "script_failure"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeCancelled      ErrorCode = "cancelled"
	ErrorCodeUnknown        ErrorCode = "unknown"
)

// ErrorContext provides structured failure information for job logging
type ErrorContext struct {
	Stage       string    // Where in the run the failure happened
	Code        ErrorCode // Failure classification
	Message     string    // Human-readable message
	Reauthorize bool      // The fix is re-running profile authorization
}

// ClassifyFailure categorizes a job failure message based on its wording.
// The messages come from subprocess output and precondition checks, so
// classification is pattern matching, with token problems checked before
// the generic "not found" case.
func ClassifyFailure(stage, message string) ErrorContext {
	ctx := ErrorContext{
		Stage:   stage,
		Code:    ErrorCodeUnknown,
		Message: message,
	}
	if message == "" {
		ctx.Message = "unknown error"
		return ctx
	}

	low := strings.ToLower(message)

	switch {
	case strings.Contains(low, "refresh token is invalid or expired"):
		ctx.Code = ErrorCodeTokenExpired
		ctx.Reauthorize = true

	case strings.Contains(low, "needs authorization") || strings.Contains(low, "token file not found") || strings.Contains(low, "token refresh failed"):
		ctx.Code = ErrorCodeAuthRequired
		ctx.Reauthorize = true

	case strings.Contains(low, "not found"):
		ctx.Code = ErrorCodeProfileMissing

	case strings.Contains(low, "timed out"):
		ctx.Code = ErrorCodeTimeout

	case strings.Contains(low, "cancelled"):
		ctx.Code = ErrorCodeCancelled

	case strings.Contains(low, "script") || strings.Contains(low, "exit"):
		ctx.Code = ErrorCodeScriptFailure
	}

	return ctx
}

// ClassifyExit builds the context for a pipeline that exited non-zero.
func ClassifyExit(stage string, code int) ErrorContext {
	return ErrorContext{
		Stage:   stage,
		Code:    ErrorCodeScriptFailure,
		Message: fmt.Sprintf("exit code %d", code),
	}
}

package async

import (
	"encoding/json"
	"testing"
	"time"
)

// ============================================================================
// Coach Penny Job Lifecycle Test Universe
// ============================================================================
//
// Characters:
//   - Coach Penny: Training coordinator who files one record per fetch run
//     and expects terminal states to stay terminal
//
// Theme: Jobs are training sessions. Each one is queued, runs a fetcher
// pipeline, and ends in exactly one final state the dashboard can trust.
// ============================================================================

func TestNewJobStartsQueued(t *testing.T) {
	t.Log("🏋️ Coach Penny: Filing a new training session")

	before := time.Now()
	job := NewJob("7", JobKindFetch, "alice")

	if job.ID != "7" {
		t.Errorf("ID = %q, want %q", job.ID, "7")
	}
	if job.Kind != JobKindFetch {
		t.Errorf("Kind = %v, want %v", job.Kind, JobKindFetch)
	}
	if job.Profile != "alice" {
		t.Errorf("Profile = %q, want %q", job.Profile, "alice")
	}
	if job.Status != JobStatusQueued {
		t.Errorf("Status = %v, want %v", job.Status, JobStatusQueued)
	}
	if job.CreatedTime.Before(before) {
		t.Error("CreatedTime predates job creation")
	}
	if job.StartTime != nil || job.EndTime != nil || job.ReturnCode != nil {
		t.Error("fresh job carries start/end/return fields")
	}
	t.Log("  ✓ Session filed: queued, clean slate")
}

func TestJobStateTransitions(t *testing.T) {
	t.Log("🏋️ Coach Penny: Walking one session from queued to completed")

	job := NewJob("1", JobKindFetch, "alice")

	job.Start()
	if job.Status != JobStatusRunning {
		t.Errorf("After Start(), status = %v, want %v", job.Status, JobStatusRunning)
	}
	if job.StartTime == nil {
		t.Error("After Start(), StartTime should be set")
	}
	t.Log("  ✓ Session running, start time stamped")

	job.Complete(0, "5 scripts finished")
	if job.Status != JobStatusCompleted {
		t.Errorf("After Complete(0), status = %v, want %v", job.Status, JobStatusCompleted)
	}
	if job.EndTime == nil {
		t.Error("After Complete(), EndTime should be set")
	}
	if job.ReturnCode == nil || *job.ReturnCode != 0 {
		t.Errorf("ReturnCode = %v, want 0", job.ReturnCode)
	}
	if job.Output != "5 scripts finished" {
		t.Errorf("Output = %q, want %q", job.Output, "5 scripts finished")
	}
	t.Log("  ✓ Session completed with captured output")
}

func TestJobCompleteNonZeroExit(t *testing.T) {
	t.Log("🏋️ Coach Penny: A non-zero exit files the session as failed")

	job := NewJob("1", JobKindFetch, "alice")
	job.Start()
	job.Complete(3, "traceback follows")

	if job.Status != JobStatusFailed {
		t.Errorf("After Complete(3), status = %v, want %v", job.Status, JobStatusFailed)
	}
	if job.ReturnCode == nil || *job.ReturnCode != 3 {
		t.Errorf("ReturnCode = %v, want 3", job.ReturnCode)
	}
	if job.Output != "traceback follows" {
		t.Errorf("Output = %q, want %q", job.Output, "traceback follows")
	}
	t.Log("  ✓ Exit 3 recorded as failure, output kept for the operator")
}

func TestJobTerminalSetters(t *testing.T) {
	tests := []struct {
		name       string
		finish     func(*Job)
		wantStatus JobStatus
		wantError  string
	}{
		{
			name:       "explicit failure",
			finish:     func(j *Job) { j.Fail("token refresh failed") },
			wantStatus: JobStatusFailed,
			wantError:  "token refresh failed",
		},
		{
			name:       "execution timeout",
			finish:     func(j *Job) { j.Timeout("fetch exceeded 6h0m0s") },
			wantStatus: JobStatusTimeout,
			wantError:  "fetch exceeded 6h0m0s",
		},
		{
			name:       "internal error",
			finish:     func(j *Job) { j.MarkError("failed to start process") },
			wantStatus: JobStatusError,
			wantError:  "failed to start process",
		},
		{
			name:       "operator cancel",
			finish:     func(j *Job) { j.Cancel("cancelled by user") },
			wantStatus: JobStatusCancelled,
			wantError:  "cancelled by user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Logf("🏋️ Coach Penny: Session ends by %s", tt.name)

			job := NewJob("1", JobKindFetch, "alice")
			job.Start()
			tt.finish(job)

			if job.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", job.Status, tt.wantStatus)
			}
			if job.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", job.Error, tt.wantError)
			}
			if job.EndTime == nil {
				t.Error("EndTime should be set")
			}
			t.Logf("  ✓ Filed as %s", tt.wantStatus)
		})
	}
}

func TestJobStatusTerminalAndCancellable(t *testing.T) {
	t.Log("🏋️ Coach Penny: Only live sessions can still be cancelled")

	tests := []struct {
		status      JobStatus
		terminal    bool
		cancellable bool
	}{
		{JobStatusQueued, false, true},
		{JobStatusRunning, false, true},
		{JobStatusCompleted, true, false},
		{JobStatusFailed, true, false},
		{JobStatusTimeout, true, false},
		{JobStatusError, true, false},
		{JobStatusCancelled, true, false},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.Cancellable(); got != tt.cancellable {
			t.Errorf("%s.Cancellable() = %v, want %v", tt.status, got, tt.cancellable)
		}
	}
	t.Log("  ✓ Terminal and cancellable agree across all seven states")
}

func TestIsValidStatus(t *testing.T) {
	valid := []string{"queued", "running", "completed", "failed", "timeout", "error", "cancelled"}
	for _, s := range valid {
		if !IsValidStatus(s) {
			t.Errorf("IsValidStatus(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "paused", "done", "QUEUED", "Running"}
	for _, s := range invalid {
		if IsValidStatus(s) {
			t.Errorf("IsValidStatus(%q) = true, want false", s)
		}
	}
}

func TestResetProgressClearsEverything(t *testing.T) {
	t.Log("🏋️ Coach Penny: A restarted session shows no stale scoreboard values")

	job := NewJob("1", JobKindFetch, "alice")
	job.Progress = 0.8
	job.Message = "Sleep from 2025-03-01"
	job.CurrentScript = "fetch_sleep_data.py"
	job.CurrentCSV = "fitbit_sleep.csv"
	job.StartDate = "2025-03-01"
	job.LastDate = "2025-03-28"
	job.ThrottleActive = true
	job.ThrottleReason = "Header reset"
	job.ThrottleMMSS = "01:30"
	job.ThrottleUntil = "2025-03-31 13:00:00"

	job.ResetProgress()

	if job.Progress != 0 {
		t.Errorf("Progress = %v, want 0", job.Progress)
	}
	if job.Message != "Preparing fetch" {
		t.Errorf("Message = %q, want %q", job.Message, "Preparing fetch")
	}
	if job.CurrentScript != "" || job.CurrentCSV != "" || job.StartDate != "" || job.LastDate != "" {
		t.Error("progress fields survived reset")
	}
	if job.ThrottleActive || job.ThrottleReason != "" || job.ThrottleMMSS != "" || job.ThrottleUntil != "" {
		t.Error("throttle fields survived reset")
	}
	t.Log("  ✓ Scoreboard wiped, message reads 'Preparing fetch'")
}

// TestJobCloneIsolation checks that a clone handed to an HTTP handler cannot
// be mutated into the registry's stored record.
func TestJobCloneIsolation(t *testing.T) {
	t.Log("🏋️ Coach Penny: Copies handed out must not write back to the file")

	job := NewJob("1", JobKindFetch, "alice")
	job.Start()
	job.Message = "Activity from 2025-03-01"

	clone := job.Clone()
	clone.Status = JobStatusCancelled
	clone.Message = "tampered"
	clone.Progress = 0.99

	if job.Status != JobStatusRunning {
		t.Errorf("original status = %v, want %v after clone mutation", job.Status, JobStatusRunning)
	}
	if job.Message != "Activity from 2025-03-01" {
		t.Errorf("original message = %q, want untouched", job.Message)
	}
	if job.Progress != 0 {
		t.Errorf("original progress = %v, want 0", job.Progress)
	}
	t.Log("  ✓ Clone mutations stayed on the clone")
}

// TestJobJSONContract pins the field names the dashboard polls. Renaming any
// of these breaks /api/fetch-status consumers.
func TestJobJSONContract(t *testing.T) {
	t.Log("🏋️ Coach Penny: The dashboard reads these exact JSON keys")

	job := NewJob("9", JobKindFetch, "alice")
	job.Start()
	job.Progress = 0.25
	job.Message = "Running fetch_steps.py"
	job.CurrentScript = "fetch_steps.py"
	job.CurrentCSV = "fitbit_activity.csv"
	job.StartDate = "2025-03-01"
	job.LastDate = "2025-03-08"
	job.ThrottleActive = true
	job.ThrottleReason = "Backoff"
	job.ThrottleMMSS = "02:00"
	job.ThrottleUntil = "2025-03-31 13:00:00"

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	for _, key := range []string{
		"id", "kind", "profile", "status", "created_time", "start_time",
		"progress", "message", "current_script", "current_csv",
		"start_date", "last_date",
		"throttle_active", "throttle_reason", "throttle_mmss", "throttle_until",
	} {
		if _, ok := fields[key]; !ok {
			t.Errorf("marshalled job missing key %q", key)
		}
	}

	if fields["status"] != "running" {
		t.Errorf("status = %v, want %q", fields["status"], "running")
	}
	if fields["progress"] != 0.25 {
		t.Errorf("progress = %v, want 0.25", fields["progress"])
	}

	// Unset optionals stay off the wire.
	for _, key := range []string{"end_time", "return_code", "output", "error"} {
		if _, ok := fields[key]; ok {
			t.Errorf("marshalled job carries unset key %q", key)
		}
	}
	t.Log("  ✓ All dashboard keys present, unset optionals omitted")
}

package async

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fitbaus/fitbaus/am"
	"github.com/fitbaus/fitbaus/errors"
	"github.com/fitbaus/fitbaus/logger"
	"github.com/fitbaus/fitbaus/profile"
	"go.uber.org/zap"
)

// Controller owns the fetch and authorization job lifecycles: spawning the
// Python subprocesses, streaming their output into progress updates, and
// finalizing records. Fetch and auth jobs live in separate registries with
// independent id counters, matching how the UI polls them.
type Controller struct {
	cfg      *am.Config
	profiles *profile.Store
	archive  *Store // nil disables archiving
	logger   *zap.SugaredLogger

	fetchJobs *Registry
	authJobs  *Registry

	mu      sync.Mutex
	verbose bool

	wg sync.WaitGroup
}

// NewController wires the controller against its collaborators. The
// persisted verbose-logging preference is loaded here so a restart keeps
// the operator's last choice.
func NewController(cfg *am.Config, profiles *profile.Store, archive *Store, log *zap.SugaredLogger) *Controller {
	return &Controller{
		cfg:       cfg,
		profiles:  profiles,
		archive:   archive,
		logger:    log.Named("fetch"),
		fetchJobs: NewRegistry(),
		authJobs:  NewRegistry(),
		verbose:   am.LoadVerboseFetchLogging(cfg.Log.VerboseFetch),
	}
}

// FetchJobs returns the fetch job registry.
func (c *Controller) FetchJobs() *Registry {
	return c.fetchJobs
}

// AuthJobs returns the authorization job registry.
func (c *Controller) AuthJobs() *Registry {
	return c.authJobs
}

// VerboseFetchLogging reports whether per-line pipeline output logging is on.
func (c *Controller) VerboseFetchLogging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verbose
}

// SetVerboseFetchLogging flips per-line output logging and persists the
// choice to the settings file.
func (c *Controller) SetVerboseFetchLogging(enabled bool) {
	c.mu.Lock()
	c.verbose = enabled
	c.mu.Unlock()

	if err := am.UpdateVerboseFetchLogging(enabled); err != nil {
		c.logger.Warnw("Failed to persist verbose fetch logging", logger.FieldError, err)
	}
}

// StartFetch queues a fetch job for the profile and launches its worker
// goroutine. The job is returned immediately for status polling.
func (c *Controller) StartFetch(profileName string) *Job {
	job := c.fetchJobs.Create(JobKindFetch, profileName)
	c.logger.Infow("Fetch job queued", logger.FieldJobID, job.ID, logger.FieldProfile, profileName)

	c.wg.Add(1)
	go c.runFetch(job.ID, profileName)
	return job
}

// runFetch drives one fetch job from queued to a terminal state.
func (c *Controller) runFetch(id, profileName string) {
	defer c.wg.Done()
	defer c.finishFetch(id)
	defer func() {
		if r := recover(); r != nil {
			c.errorFetch(id, fmt.Sprintf("panic: %v", r))
		}
	}()

	started := false
	c.fetchJobs.Update(id, func(j *Job) bool {
		if j.Status.Terminal() {
			return false
		}
		j.Start()
		j.ResetProgress()
		started = true
		return true
	})
	if !started {
		return
	}

	if !c.checkTokens(id, profileName) {
		return
	}
	if !c.refreshTokens(id, profileName) {
		return
	}
	c.runPipeline(id, profileName)
}

// checkTokens enforces the fetch preconditions: the profile must exist and
// hold a refresh token. Failure messages point at the UI path that fixes
// the problem, which is what the frontend displays verbatim.
func (c *Controller) checkTokens(id, profileName string) bool {
	state, err := c.profiles.TokenState(profileName)
	if err != nil {
		c.failFetch(id, "precondition", fmt.Sprintf("Error checking tokens: %v", err))
		return false
	}
	switch state {
	case profile.TokensMissing:
		c.failFetch(id, "precondition", fmt.Sprintf("Profile %s not found. Go to Profile Management -> New Profile", profileName))
		return false
	case profile.TokensUnauthorized:
		c.failFetch(id, "precondition", fmt.Sprintf("Profile %s needs authorization. Go to Profile Management -> Existing Profiles -> Auth", profileName))
		return false
	}
	return true
}

// refreshTokens runs the token refresh helper before the pipeline. A failed
// refresh fails the job with a sanitized single-line explanation.
func (c *Controller) refreshTokens(id, profileName string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RefreshTimeout())
	defer cancel()

	argv := append(c.cfg.PythonArgv(), c.cfg.RefreshScriptPath())
	res, err := Run(ctx, Command{
		Argv: argv,
		Dir:  c.cfg.Paths.ScriptsDir,
		Env: []string{
			"FITBIT_PROFILE=" + profileName,
			"PYTHONIOENCODING=utf-8",
			"PYTHONUNBUFFERED=1",
		},
	})
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			c.failFetch(id, "refresh", "Error checking tokens: token refresh timed out")
			return false
		}
		c.failFetch(id, "refresh", fmt.Sprintf("Error checking tokens: %v", err))
		return false
	}
	if res.Exit != 0 {
		msg := SanitizeRefreshError(res.Stdout, res.Stderr)
		c.failFetch(id, "refresh", fmt.Sprintf("Token refresh failed: %s. Go to Profile Management -> Existing Profiles -> Auth", msg))
		return false
	}
	return true
}

// runPipeline spawns the fetch pipeline and streams its output until it
// exits, times out, or is cancelled from outside.
func (c *Controller) runPipeline(id, profileName string) {
	// A cancel may have landed between queueing and here; don't spawn a
	// process nothing will reap into the record.
	if job, ok := c.fetchJobs.Get(id); !ok || job.Status.Terminal() {
		return
	}

	argv := append(c.cfg.PythonArgv(), c.cfg.PipelineScriptPath())
	if profileName != "" {
		argv = append(argv, "--profile", profileName)
	}

	handle, err := Spawn(Command{
		Argv: argv,
		Dir:  c.cfg.Paths.ScriptsDir,
		Env: []string{
			"PYTHONIOENCODING=utf-8",
			"PYTHONUNBUFFERED=1",
		},
	})
	if err != nil {
		c.errorFetch(id, err.Error())
		return
	}
	c.fetchJobs.SetProc(id, handle)
	c.logger.Infow("Fetch pipeline started", logger.FieldJobID, id, logger.FieldProfile, profileName)

	parser := NewParser()
	output := newLineBuffer(maxOutputLines)
	deadline := time.NewTimer(c.cfg.FetchTimeout())
	defer deadline.Stop()

	lines := handle.Lines()
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				break
			}
			output.Append(line)
			if c.VerboseFetchLogging() {
				c.logger.Infow("[fetch] "+line, logger.FieldJobID, id)
			}
			c.fetchJobs.Update(id, func(j *Job) bool {
				return parser.Apply(j, line)
			})
		case <-deadline.C:
			c.timeoutFetch(id, handle)
			return
		}
	}

	code := handle.Wait()
	job, ok := c.fetchJobs.Finalize(id, func(j *Job) {
		j.Complete(code, output.String())
		if code != 0 {
			j.Error = fmt.Sprintf("Fetch pipeline exited with code %d", code)
		}
	})
	if !ok {
		// A cancel won the race; its finalizer recorded the end.
		return
	}
	if code == 0 {
		c.logger.Infow("Fetch job completed", logger.FieldJobID, id, logger.FieldProfile, job.Profile)
	} else {
		ectx := ClassifyExit("pipeline", code)
		c.logger.Errorw("Fetch job failed",
			logger.FieldJobID, id,
			logger.FieldProfile, job.Profile,
			"stage", ectx.Stage,
			"code", string(ectx.Code),
			logger.FieldError, ectx.Message,
		)
	}
	c.archiveJob(job)
}

// timeoutFetch kills an overrunning pipeline and finalizes the job. The
// remaining output is drained so the process gets reaped.
func (c *Controller) timeoutFetch(id string, handle *Handle) {
	if err := handle.Kill(); err != nil {
		c.logger.Warnw("Failed to kill fetch pipeline", logger.FieldJobID, id, logger.FieldError, err)
	}
	go func() {
		for range handle.Lines() {
		}
	}()

	message := fmt.Sprintf("Script execution timed out after %s", c.cfg.FetchTimeout())
	job, ok := c.fetchJobs.Finalize(id, func(j *Job) {
		j.Timeout(message)
	})
	if !ok {
		return
	}
	c.logger.Errorw("Fetch job timed out",
		logger.FieldJobID, id,
		logger.FieldProfile, job.Profile,
		"stage", "pipeline",
		"code", string(ErrorCodeTimeout),
		logger.FieldError, message,
	)
	c.archiveJob(job)
}

// failFetch finalizes a job as failed. Losing the finalize race means
// another path already decided the terminal state.
func (c *Controller) failFetch(id, stage, message string) {
	job, ok := c.fetchJobs.Finalize(id, func(j *Job) {
		j.Fail(message)
	})
	if !ok {
		return
	}
	ectx := ClassifyFailure(stage, message)
	c.logger.Errorw("Fetch job failed",
		logger.FieldJobID, id,
		logger.FieldProfile, job.Profile,
		"stage", ectx.Stage,
		"code", string(ectx.Code),
		"reauthorize", ectx.Reauthorize,
		logger.FieldError, message,
	)
	c.archiveJob(job)
}

// errorFetch finalizes a job that broke before or outside the pipeline run.
func (c *Controller) errorFetch(id, message string) {
	job, ok := c.fetchJobs.Finalize(id, func(j *Job) {
		j.MarkError(message)
	})
	if !ok {
		return
	}
	c.logger.Errorw("Fetch job errored", logger.FieldJobID, id, logger.FieldProfile, job.Profile, logger.FieldError, message)
	c.archiveJob(job)
}

// finishFetch mirrors the run goroutine's final bookkeeping: once the job
// reached a terminal state its process handle is dropped and the record is
// scheduled for removal, leaving pollers a window to observe the outcome.
func (c *Controller) finishFetch(id string) {
	job, ok := c.fetchJobs.Get(id)
	if !ok || !job.Status.Terminal() {
		return
	}
	c.fetchJobs.ClearProc(id)
	c.scheduleCleanup(c.fetchJobs, id)
}

// scheduleCleanup removes a finished job record after the grace period.
func (c *Controller) scheduleCleanup(reg *Registry, id string) {
	time.AfterFunc(c.cfg.CleanupGrace(), func() {
		reg.Remove(id)
	})
}

// CancelFetch stops an active fetch job. Jobs already in a terminal state
// are rejected so callers can tell "now cancelled" from "already done".
func (c *Controller) CancelFetch(id string) error {
	job, ok := c.fetchJobs.Get(id)
	if !ok {
		return errors.ErrJobNotFound
	}
	if !job.Status.Cancellable() {
		return errors.ErrJobNotCancellable
	}

	c.stopFetchProcess(id)

	if final, ok := c.fetchJobs.Finalize(id, func(j *Job) {
		j.Cancel("Cancelled by user")
	}); ok {
		c.logger.Infow("Fetch job cancelled", logger.FieldJobID, id, logger.FieldProfile, final.Profile)
		c.archiveJob(final)
	}
	// Losing the finalize race means the pipeline finished inside the
	// grace window; the job is terminal either way.
	return nil
}

// CancelProfileJobs stops every active fetch job for the profile. Profile
// deletion uses this so a running pipeline cannot recreate files
// mid-delete. Returns how many jobs were cancelled.
func (c *Controller) CancelProfileJobs(profileName, reason string) int {
	jobs := c.fetchJobs.ActiveForProfile(profileName)
	for _, job := range jobs {
		c.stopFetchProcess(job.ID)
		if final, ok := c.fetchJobs.Finalize(job.ID, func(j *Job) {
			j.Cancel(reason)
		}); ok {
			c.logger.Infow("Fetch job cancelled", logger.FieldJobID, job.ID, logger.FieldProfile, profileName, "reason", reason)
			c.archiveJob(final)
		}
	}
	return len(jobs)
}

// stopFetchProcess terminates a job's subprocess, escalating to SIGKILL
// when it ignores SIGTERM past the grace period.
func (c *Controller) stopFetchProcess(id string) {
	handle, ok := c.fetchJobs.Proc(id)
	if !ok || !handle.Running() {
		return
	}
	if err := handle.Terminate(); err != nil {
		c.logger.Warnw("Failed to terminate fetch process", logger.FieldJobID, id, logger.FieldError, err)
	}
	if _, exited := handle.WaitTimeout(c.cfg.CancelGrace()); !exited {
		if err := handle.Kill(); err != nil {
			c.logger.Warnw("Failed to kill fetch process", logger.FieldJobID, id, logger.FieldError, err)
		}
	}
}

// DeleteProfile cancels the profile's active fetch jobs and removes its
// data through the reset helper, which owns the on-disk layout.
func (c *Controller) DeleteProfile(profileName string) error {
	c.CancelProfileJobs(profileName, "Cancelled due to profile deletion")

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ProfileDeleteTimeout())
	defer cancel()

	argv := append(c.cfg.PythonArgv(), c.cfg.ResetScriptPath(), "--profile", profileName, "--yes")
	res, err := Run(ctx, Command{Argv: argv, Dir: c.cfg.Paths.ScriptsDir})
	if err != nil {
		return err
	}
	if res.Exit != 0 {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(res.Stdout)
		}
		if detail == "" {
			detail = "Unknown error"
		}
		return errors.Newf("%s", detail)
	}

	c.logger.Infow("Profile deleted", logger.FieldProfile, profileName)
	return nil
}

// StartAuthorize queues a background authorization job for the profile.
// Auth job records are kept for the life of the server so the outcome
// stays inspectable; there is no delayed cleanup for them.
func (c *Controller) StartAuthorize(profileName string) *Job {
	job := c.authJobs.Create(JobKindAuthorize, profileName)
	c.logger.Infow("Authorization job queued", logger.FieldJobID, job.ID, logger.FieldProfile, profileName)

	c.wg.Add(1)
	go c.runAuthorize(job.ID, profileName)
	return job
}

// runAuthorize drives one authorization job. The script opens a browser
// and waits for the user, so the bound is generous and both streams are
// captured separately; stderr lands in the record even on success.
func (c *Controller) runAuthorize(id, profileName string) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			job, ok := c.authJobs.Finalize(id, func(j *Job) {
				j.MarkError(fmt.Sprintf("panic: %v", r))
			})
			if ok {
				c.logger.Errorw("Authorize job panicked", logger.FieldJobID, id, logger.FieldError, r)
				c.archiveJob(job)
			}
		}
	}()

	started := false
	c.authJobs.Update(id, func(j *Job) bool {
		if j.Status.Terminal() {
			return false
		}
		j.Start()
		started = true
		return true
	})
	if !started {
		return
	}

	if !c.profiles.HasCredentials(profileName) {
		message := fmt.Sprintf("Profile %s not found. Create it first.", profileName)
		job, ok := c.authJobs.Finalize(id, func(j *Job) {
			j.Fail(message)
		})
		if ok {
			c.logger.Errorw("Authorization job failed", logger.FieldJobID, id, logger.FieldProfile, profileName, logger.FieldError, message)
			c.archiveJob(job)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AuthorizeTimeout())
	defer cancel()

	argv := append(c.cfg.PythonArgv(), c.cfg.AuthorizeScriptPath(), "--profile", profileName)
	res, err := Run(ctx, Command{Argv: argv, Dir: c.cfg.Paths.ScriptsDir})
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			message := fmt.Sprintf("Authorization timed out after %s", c.cfg.AuthorizeTimeout())
			job, ok := c.authJobs.Finalize(id, func(j *Job) {
				j.Timeout(message)
			})
			if ok {
				c.logger.Errorw("Authorization job timed out", logger.FieldJobID, id, logger.FieldProfile, profileName, logger.FieldError, message)
				c.archiveJob(job)
			}
			return
		}
		job, ok := c.authJobs.Finalize(id, func(j *Job) {
			j.MarkError(err.Error())
		})
		if ok {
			c.logger.Errorw("Authorization job errored", logger.FieldJobID, id, logger.FieldProfile, profileName, logger.FieldError, err)
			c.archiveJob(job)
		}
		return
	}

	job, ok := c.authJobs.Finalize(id, func(j *Job) {
		j.Complete(res.Exit, res.Stdout)
		if res.Exit != 0 {
			j.Error = SanitizeScriptError(res.Stdout, res.Stderr,
				fmt.Sprintf("Authorization script exited with code %d", res.Exit))
		}
	})
	if !ok {
		return
	}
	if res.Exit == 0 {
		c.logger.Infow("Authorization job completed", logger.FieldJobID, id, logger.FieldProfile, profileName)
	} else {
		c.logger.Errorw("Authorization job failed",
			logger.FieldJobID, id,
			logger.FieldProfile, profileName,
			"stage", "authorize",
			"code", string(ErrorCodeScriptFailure),
			logger.FieldError, fmt.Sprintf("exit code %d", res.Exit),
		)
	}
	c.archiveJob(job)
}

// archiveJob persists a terminal job record when an archive store is wired.
func (c *Controller) archiveJob(job *Job) {
	if c.archive == nil || job == nil {
		return
	}
	if err := c.archive.ArchiveJob(job); err != nil {
		c.logger.Warnw("Failed to archive job record", logger.FieldJobID, job.ID, logger.FieldError, err)
	}
}

// Shutdown terminates running pipelines and waits for job goroutines to
// drain, giving up after the timeout so server shutdown is never wedged by
// a stuck child process.
func (c *Controller) Shutdown(timeout time.Duration) {
	for _, job := range c.fetchJobs.List() {
		if job.Status == JobStatusRunning {
			c.stopFetchProcess(job.ID)
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Infow("Fetch controller stopped")
	case <-time.After(timeout):
		c.logger.Warnw("Fetch controller stop timed out", "timeout", timeout)
	}
}

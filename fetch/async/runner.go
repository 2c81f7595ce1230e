package async

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fitbaus/fitbaus/errors"
)

const (
	// maxLineBytes bounds a single scanned output line
	maxLineBytes = 1024 * 1024
	// maxCaptureBytes bounds each captured stream of a short-lived run
	maxCaptureBytes = 256 * 1024
	// maxOutputLines bounds how many streamed lines a job record retains
	maxOutputLines = 4000
)

// Command describes a subprocess the controller wants to run.
type Command struct {
	Argv []string // program and arguments
	Dir  string   // working directory ("" = inherit)
	Env  []string // KEY=value pairs appended to the parent environment
}

// Handle wraps a started subprocess whose stdout and stderr are merged into
// a single ordered line stream. The stream closes on EOF; Wait then returns
// the exit code once the process has been reaped.
type Handle struct {
	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}

	mu      sync.Mutex
	exit    int
	waitErr error
}

// Spawn starts the subprocess with merged output streams.
func Spawn(cmd Command) (*Handle, error) {
	if len(cmd.Argv) == 0 {
		return nil, errors.New("empty command")
	}

	c := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)

	// One pipe for both streams, so lines arrive in the order the child
	// produced them (interleaved stderr shows up where it happened).
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create output pipe")
	}
	c.Stdout = pw
	c.Stderr = pw

	if err := c.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, errors.Wrapf(err, "failed to start %s", cmd.Argv[0])
	}

	// The child holds its own copy of the write end. Closing ours makes the
	// reader see EOF as soon as the child exits.
	pw.Close()

	h := &Handle{
		cmd:   c,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(h.lines)
		defer pr.Close()

		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			h.lines <- scanner.Text()
		}
	}()

	go func() {
		// Output must be fully drained before Wait closes the read side
		<-readerDone

		err := c.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.exit = exitStatus(err)
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// Lines returns the merged output stream. The channel closes at EOF.
func (h *Handle) Lines() <-chan string {
	return h.lines
}

// Wait blocks until the subprocess has been reaped and returns its exit
// code. The code is negative when the process died from a signal.
func (h *Handle) Wait() int {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit
}

// WaitTimeout waits up to d for the process to be reaped. Reports false if
// it is still running when the timer fires.
func (h *Handle) WaitTimeout(d time.Duration) (int, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exit, true
	case <-time.After(d):
		return 0, false
	}
}

// Done returns a channel closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Running reports whether the subprocess has not been reaped yet.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Terminate asks the subprocess to exit gracefully (SIGTERM).
func (h *Handle) Terminate() error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "failed to terminate process (pid %d)", h.cmd.Process.Pid)
	}
	return nil
}

// Kill forcibly ends the subprocess.
func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return errors.New("process not started")
	}
	if err := h.cmd.Process.Kill(); err != nil {
		return errors.Wrapf(err, "failed to kill process (pid %d)", h.cmd.Process.Pid)
	}
	return nil
}

// exitStatus maps a Wait error to an exit code. Nil is success, a signal
// death reports as -1.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// RunResult carries the captured streams and exit code of a completed run.
type RunResult struct {
	Stdout string
	Stderr string
	Exit   int
}

// Run executes a short-lived subprocess to completion, capturing stdout and
// stderr separately. The context bounds execution: on deadline the child is
// killed and ErrTimeout is returned alongside whatever was captured. A
// non-zero exit is a result, not an error.
func Run(ctx context.Context, cmd Command) (*RunResult, error) {
	if len(cmd.Argv) == 0 {
		return nil, errors.New("empty command")
	}

	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)

	stdout := &cappedBuffer{limit: maxCaptureBytes}
	stderr := &cappedBuffer{limit: maxCaptureBytes}
	c.Stdout = stdout
	c.Stderr = stderr

	err := c.Run()
	res := &RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Exit:   exitStatus(err),
	}

	if ctx.Err() == context.DeadlineExceeded {
		return res, errors.Wrapf(errors.ErrTimeout, "%s timed out", cmd.Argv[0])
	}
	if ctx.Err() != nil {
		return res, errors.Wrapf(ctx.Err(), "%s aborted", cmd.Argv[0])
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, nil
		}
		return res, errors.Wrapf(err, "failed to run %s", cmd.Argv[0])
	}
	return res, nil
}

// cappedBuffer retains up to limit bytes and discards the rest, so a chatty
// subprocess cannot balloon memory during a bounded run.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining > 0 {
		if len(p) <= remaining {
			b.buf.Write(p)
		} else {
			b.buf.Write(p[:remaining])
			b.truncated = true
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n... output truncated ..."
	}
	return b.buf.String()
}

// lineBuffer accumulates streamed output lines, keeping the tail when the
// cap is exceeded. Failure detail lands at the end of a pipeline's output,
// so the tail is the part worth retaining.
type lineBuffer struct {
	lines   []string
	max     int
	dropped int
}

func newLineBuffer(max int) *lineBuffer {
	return &lineBuffer{max: max}
}

func (b *lineBuffer) Append(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		over := len(b.lines) - b.max
		b.lines = b.lines[over:]
		b.dropped += over
	}
}

func (b *lineBuffer) String() string {
	if b.dropped > 0 {
		return fmt.Sprintf("... %d earlier lines dropped ...\n%s", b.dropped, strings.Join(b.lines, "\n"))
	}
	return strings.Join(b.lines, "\n")
}

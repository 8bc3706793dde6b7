// Package proc provides the process-spawning capability used by the launch
// orchestration: start a long-lived child with streamed output, or run a
// short command and capture its combined output.
package proc

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Runner spawns external commands. The orchestration code depends on this
// interface so tests can substitute fakes for adb, ionic and friends.
type Runner interface {
	// Start launches a long-lived child process with piped stdout/stderr.
	Start(ctx context.Context, name string, args []string, dir string) (*Handle, error)

	// CombinedOutput runs a command to completion and returns its combined
	// stdout+stderr.
	CombinedOutput(ctx context.Context, name string, args []string, dir string) (string, error)
}

// Handle wraps a running child process. The owner is responsible for calling
// Kill (or Wait) exactly once; Kill is idempotent.
type Handle struct {
	// Stdout is the child's standard output stream.
	Stdout io.ReadCloser

	// Stderr is the child's standard error stream.
	Stderr io.ReadCloser

	cmd    *exec.Cmd
	cancel context.CancelFunc

	// done is closed once the child has been reaped; waitErr holds the
	// exit result and is written before the close.
	done chan struct{}

	mu      sync.Mutex
	waited  bool
	waitErr error
	killed  bool
}

// Pid returns the OS process id of the child.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Wait blocks until the child exits and reaps it. Concurrent callers all
// block until the exit and see the same result.
func (h *Handle) Wait() error {
	h.mu.Lock()
	if h.waited {
		h.mu.Unlock()
		<-h.done
		return h.waitErr
	}
	h.waited = true
	h.mu.Unlock()

	err := h.cmd.Wait()
	h.waitErr = err
	close(h.done)
	return err
}

// Kill terminates the child's entire process group, so tool wrappers like
// ionic cannot leave their own children (Metro, webpack) behind. Graceful
// termination is attempted first, falling back to a forced kill.
func (h *Handle) Kill() {
	h.mu.Lock()
	if h.killed {
		h.mu.Unlock()
		return
	}
	h.killed = true
	h.mu.Unlock()

	if h.cmd.Process == nil {
		return
	}
	pid := h.cmd.Process.Pid
	killProcessGroup(pid)

	// Reap in the background in case no one else is waiting. The select
	// below watches actual process exit, so a Wait already in flight
	// elsewhere cannot short-circuit the escalation to a forced kill.
	go func() {
		_ = h.Wait()
	}()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		forceKillProcessGroup(pid)
		<-h.done
	}

	if h.cancel != nil {
		h.cancel()
	}
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Start launches name with args in dir, with stdout and stderr piped.
// A missing executable surfaces as an error satisfying
// errors.Is(err, exec.ErrNotFound) so callers can map it to an install hint.
func (r *ExecRunner) Start(ctx context.Context, name string, args []string, dir string) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CI=1")
	setSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	return &Handle{
		Stdout: stdout,
		Stderr: stderr,
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// CombinedOutput runs name with args in dir and returns combined output.
// The output is returned even when the command exits non-zero, so callers
// can scan it for tool-specific error markers.
func (r *ExecRunner) CombinedOutput(ctx context.Context, name string, args []string, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

package devserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/proc"
)

// Server owns the running dev-server child process for one session.
type Server struct {
	// URL is the dev server's base URL, set once startup succeeds.
	URL string

	handle  *proc.Handle
	watcher *Watcher
}

// Stop kills the dev-server process group. Safe to call on a partially
// started server and safe to call more than once.
func (s *Server) Stop() {
	if s == nil || s.handle == nil {
		return
	}
	s.handle.Kill()
}

// Start spawns the ionic dev server with the given CLI args, watches its
// output for readiness under the spec's two timeouts, and returns the server
// with its base URL populated.
//
// On error the returned *Server is still non-nil whenever a process was
// spawned, so the caller can (and must) Stop it.
func Start(ctx context.Context, spec *config.LaunchSpec, args []string, runner proc.Runner) (*Server, error) {
	mode := ModeRun
	if len(args) > 0 && args[0] == "serve" {
		mode = ModeServe
	}

	// Whether the app will pick up edits live. Affects only messaging: the
	// startup sequencing is identical either way.
	isLivereloading := (mode == ModeServe && !slices.Contains(args, "--nolivereload")) ||
		slices.Contains(args, "--livereload")

	handle, err := runner.Start(ctx, "ionic", args, spec.Cwd)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("ionic not found. Install it with: npm install -g ionic")
		}
		return nil, fmt.Errorf("failed to start ionic %s: %w", strings.Join(args, " "), err)
	}

	log.Debug("dev server started", "args", args, "pid", handle.Pid(), "livereload", isLivereloading)
	if isLivereloading {
		log.Info("Live reload is enabled; edits will be pushed to the running app")
	}

	watcher := NewWatcher(mode)
	server := &Server{handle: handle, watcher: watcher}

	go pump(handle.Stdout, watcher)
	go pump(handle.Stderr, watcher)
	go func() {
		// If the tool dies before readiness this fails the watcher; after
		// readiness the watcher is detached and the exit is ignored here.
		err := handle.Wait()
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				err = fmt.Errorf("ionic not found. Install it with: npm install -g ionic")
			}
			watcher.Fail(fmt.Errorf("dev server terminated: %w", err))
			return
		}
		watcher.Fail(fmt.Errorf("dev server exited before becoming ready"))
	}()

	if err := watcher.WaitServerReady(spec.ServerReadyTimeout); err != nil {
		return server, err
	}
	if err := watcher.WaitAppReady(spec.AppReadyTimeout); err != nil {
		return server, err
	}

	url, err := watcher.ServerURL()
	if err != nil {
		return server, err
	}
	server.URL = url
	log.Debug("dev server ready", "url", url)
	return server, nil
}

// pump feeds a process output stream into the watcher line by line,
// preserving arrival order per stream.
func pump(r io.Reader, w *Watcher) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		w.Observe(scanner.Text() + "\n")
	}
}

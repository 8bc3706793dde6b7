// Package devserver manages the live-reload dev server: spawning the tool,
// watching its streamed output for readiness, and extracting the served URL.
package devserver

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// State is the watcher's position in the startup sequence.
type State int

const (
	// StateStarting means no ready banner has been seen yet.
	StateStarting State = iota

	// StateServerReady means the dev server accepted its port.
	StateServerReady

	// StateAppReady means the app build/deploy phase completed (terminal).
	StateAppReady

	// StateFailed is terminal from any state.
	StateFailed
)

// Mode selects the readiness heuristic.
type Mode int

const (
	// ModeServe is a pure `serve` invocation: the first ready banner means
	// the whole startup is done, there is no build/deploy phase.
	ModeServe Mode = iota

	// ModeRun is a `run`/`emulate` invocation: the build/deploy output
	// repeats the ready banner, so the second occurrence marks app-ready.
	// This mirrors the tool's observed output and is a compatibility risk
	// against future tool versions, not a contract.
	ModeRun
)

// Output patterns for the ionic/cordova dev server. All scraping of the
// tool's text output is confined to this file so the pattern set can be
// versioned without touching orchestration.
var (
	readyPattern     = regexp.MustCompile(`Running (?:dev|live reload) server`)
	serverURLPattern = regexp.MustCompile(`Running (?:dev|live reload) server:?\s*(https?://\S+)`)
	ambiguousPattern = regexp.MustCompile(`Multiple network interfaces detected`)
	candidatePattern = regexp.MustCompile(`(?m)^\s*\d+\)\s*(.+?)\s*$`)
)

// TimeoutError reports that a readiness phase exceeded its bound.
type TimeoutError struct {
	// Step names the phase that timed out.
	Step string

	// Bound is the enforced limit.
	Bound time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %d ms waiting for %s", e.Bound.Milliseconds(), e.Step)
}

// AmbiguousAddressError reports that the dev server asked which network
// interface to serve on instead of picking one.
type AmbiguousAddressError struct {
	// Candidates holds the address lines extracted from the tool output,
	// verbatim, for the operator to choose from.
	Candidates []string
}

func (e *AmbiguousAddressError) Error() string {
	msg := "dev server detected multiple network interfaces; pass an explicit address"
	if len(e.Candidates) > 0 {
		msg += ":\n  " + strings.Join(e.Candidates, "\n  ")
	}
	return msg
}

// MalformedOutputError reports that the ready banner appeared but no server
// URL could be extracted from the accumulated output.
type MalformedOutputError struct {
	Output string
}

func (e *MalformedOutputError) Error() string {
	return "dev server reported ready but no server URL was found in its output"
}

// Watcher classifies accumulating dev-server output against the readiness
// patterns. Chunks are appended to a single accumulator and the whole text is
// rescanned each time, since a pattern may span chunk boundaries. Once a
// terminal state is reached the watcher detaches and further chunks are
// dropped unscanned.
type Watcher struct {
	mode Mode

	mu       sync.Mutex
	state    State
	buf      strings.Builder
	err      error
	detached bool

	serverReady chan struct{}
	appReady    chan struct{}
	failed      chan struct{}
}

// NewWatcher creates a watcher in StateStarting.
func NewWatcher(mode Mode) *Watcher {
	return &Watcher{
		mode:        mode,
		serverReady: make(chan struct{}),
		appReady:    make(chan struct{}),
		failed:      make(chan struct{}),
	}
}

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Observe appends a chunk of process output and advances the state machine.
// Chunks must be delivered in arrival order.
func (w *Watcher) Observe(chunk string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.detached {
		return
	}
	w.buf.WriteString(chunk)
	text := w.buf.String()

	if ambiguousPattern.MatchString(text) {
		var candidates []string
		for _, m := range candidatePattern.FindAllStringSubmatch(text, -1) {
			candidates = append(candidates, m[1])
		}
		w.failLocked(&AmbiguousAddressError{Candidates: candidates})
		return
	}

	occurrences := len(readyPattern.FindAllStringIndex(text, -1))

	if w.state == StateStarting && occurrences >= 1 {
		w.state = StateServerReady
		close(w.serverReady)
		if w.mode == ModeServe {
			w.state = StateAppReady
			close(w.appReady)
			w.detached = true
			return
		}
	}

	if w.state == StateServerReady && w.mode == ModeRun && occurrences >= 2 {
		w.state = StateAppReady
		close(w.appReady)
		w.detached = true
	}
}

// Fail moves the watcher to StateFailed. Used by the process owner when the
// tool exits or fails to spawn before readiness. No-op after a terminal state.
func (w *Watcher) Fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failLocked(err)
}

func (w *Watcher) failLocked(err error) {
	if w.detached {
		return
	}
	w.state = StateFailed
	w.err = err
	w.detached = true
	close(w.failed)
}

// Err returns the failure cause once StateFailed is reached.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Output returns the accumulated text seen so far.
func (w *Watcher) Output() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// WaitServerReady blocks until the server-ready transition, failure, or the
// timeout. The caller owns the bound: server startup is quick, so this is
// the short one.
func (w *Watcher) WaitServerReady(timeout time.Duration) error {
	return w.wait(w.serverReady, timeout, "dev server to start")
}

// WaitAppReady blocks until the app-ready transition, failure, or the
// timeout. Build plus deploy can be slow (an emulator may be booting), so
// callers pass a generous bound here.
func (w *Watcher) WaitAppReady(timeout time.Duration) error {
	return w.wait(w.appReady, timeout, "app to build and deploy")
}

func (w *Watcher) wait(ch <-chan struct{}, timeout time.Duration, step string) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-w.failed:
		return w.Err()
	case <-timer.C:
		return &TimeoutError{Step: step, Bound: timeout}
	}
}

// ServerURL extracts the dev server's base URL from the accumulated output.
// Only meaningful after readiness; absence of a match at that point means the
// tool's output format changed under us.
func (w *Watcher) ServerURL() (string, error) {
	w.mu.Lock()
	text := w.buf.String()
	w.mu.Unlock()

	m := serverURLPattern.FindStringSubmatch(text)
	if m == nil {
		return "", &MalformedOutputError{Output: text}
	}
	return m[1], nil
}

package tunnel

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/webviewtools/wvd/internal/proc"
)

// WebkitProxy manages the ios_webkit_debug_proxy child process, which
// bridges a local port range to the device's native webkit debug transport.
//
// TODO: fold proxy ownership into the session the way the dev-server handle
// is owned, so both long-lived children share one lifecycle path.
type WebkitProxy struct {
	// ProxyPort is the proxy's own listing port.
	ProxyPort int

	// RangeMin/RangeMax bound the per-device ports the proxy hands out.
	RangeMin int
	RangeMax int

	runner proc.Runner

	mu     sync.Mutex
	handle *proc.Handle
}

// NewWebkitProxy creates a proxy manager; Start launches the process.
func NewWebkitProxy(runner proc.Runner, proxyPort, rangeMin, rangeMax int) *WebkitProxy {
	return &WebkitProxy{
		ProxyPort: proxyPort,
		RangeMin:  rangeMin,
		RangeMax:  rangeMax,
		runner:    runner,
	}
}

// Start launches ios_webkit_debug_proxy over the configured port range. Any
// previously started proxy is stopped first. Readiness is not awaited here;
// the attach flow polls the proxy's HTTP endpoint with bounded retries.
func (p *WebkitProxy) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil {
		p.handle.Kill()
		p.handle = nil
	}

	args := []string{"-c", fmt.Sprintf("null:%d,:%d-%d", p.ProxyPort, p.RangeMin, p.RangeMax)}
	handle, err := p.runner.Start(ctx, "ios_webkit_debug_proxy", args, "")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("ios_webkit_debug_proxy not found. Install it with: brew install ios-webkit-debug-proxy")
		}
		return fmt.Errorf("failed to start ios_webkit_debug_proxy: %w", err)
	}

	p.handle = handle
	log.Debug("webkit debug proxy started", "port", p.ProxyPort, "range", fmt.Sprintf("%d-%d", p.RangeMin, p.RangeMax), "pid", handle.Pid())
	return nil
}

// Stop terminates the proxy process. Safe to call when never started.
func (p *WebkitProxy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return
	}
	p.handle.Kill()
	p.handle = nil
	log.Debug("webkit debug proxy stopped", "port", p.ProxyPort)
}

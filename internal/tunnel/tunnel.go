// Package tunnel owns the session's device port forwarding: the single
// active adb forward binding on Android, and the webkit debug proxy process
// on iOS.
package tunnel

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/webviewtools/wvd/internal/adb"
)

// Binding records one active local-port-to-device forward.
type Binding struct {
	// DeviceID is the bridge identifier of the forwarded device.
	DeviceID string

	// LocalPort is the local TCP port mapped onto the device socket.
	LocalPort int
}

// Manager owns at most one Binding at a time. Establishing a new forward
// replaces the previous one; Teardown clears it. Single writer: only the
// session lifecycle calls into a Manager.
type Manager struct {
	bridge *adb.Bridge

	mu      sync.Mutex
	binding *Binding
}

// NewManager creates a Manager over the given bridge.
func NewManager(bridge *adb.Bridge) *Manager {
	return &Manager{bridge: bridge}
}

// ForwardWebview forwards localPort to the webview devtools socket of the
// app process with the given PID and records the binding. Any prior binding
// is removed first so forwards never accumulate across re-attaches.
func (m *Manager) ForwardWebview(ctx context.Context, deviceID string, localPort int, pid string) (*Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.binding != nil {
		if err := m.bridge.RemoveForward(ctx, m.binding.DeviceID, m.binding.LocalPort); err != nil {
			log.Warn("failed to remove stale forward", "device", m.binding.DeviceID, "port", m.binding.LocalPort, "error", err)
		}
		m.binding = nil
	}

	remote := fmt.Sprintf("localabstract:webview_devtools_remote_%s", pid)
	if err := m.bridge.Forward(ctx, deviceID, localPort, remote); err != nil {
		return nil, fmt.Errorf("failed to forward port %d to %s: %w", localPort, remote, err)
	}

	m.binding = &Binding{DeviceID: deviceID, LocalPort: localPort}
	log.Debug("forward established", "device", deviceID, "port", localPort, "remote", remote)
	return m.binding, nil
}

// Binding returns the active binding, or nil.
func (m *Manager) Binding() *Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binding
}

// Teardown removes the active forward, if any. Best effort: failures are
// logged and swallowed so disconnect always completes.
func (m *Manager) Teardown(ctx context.Context) {
	m.mu.Lock()
	binding := m.binding
	m.binding = nil
	m.mu.Unlock()

	if binding == nil {
		return
	}
	if err := m.bridge.RemoveForward(ctx, binding.DeviceID, binding.LocalPort); err != nil {
		log.Warn("failed to remove forward", "device", binding.DeviceID, "port", binding.LocalPort, "error", err)
		return
	}
	log.Debug("forward removed", "device", binding.DeviceID, "port", binding.LocalPort)
}

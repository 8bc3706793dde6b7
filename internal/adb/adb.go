// Package adb wraps the Android device bridge CLI: device listing, process
// discovery on-device, and port forwarding. All parsing of adb's line
// oriented output lives here; a change in adb's output format is a
// compatibility break for this package.
package adb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/proc"
	"github.com/webviewtools/wvd/internal/retry"
)

var (
	// ErrDeviceNotFound means no physical device is attached and authorized.
	ErrDeviceNotFound = errors.New("no connected Android device found; check 'adb devices'")

	// ErrEmulatorNotFound means no running emulator was listed.
	ErrEmulatorNotFound = errors.New("no running Android emulator found; start one and retry")
)

// Bridge runs adb commands through a proc.Runner so tests can fake the tool.
type Bridge struct {
	runner proc.Runner
}

// NewBridge creates a Bridge backed by the given runner.
func NewBridge(runner proc.Runner) *Bridge {
	return &Bridge{runner: runner}
}

func (b *Bridge) run(ctx context.Context, args ...string) (string, error) {
	out, err := b.runner.CombinedOutput(ctx, "adb", args, "")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("adb not found. Install the Android SDK platform-tools and add them to PATH")
		}
		return out, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// ResolveDevice picks the device identifier for the target out of
// `adb devices` output. Device targets take the first entry in state
// "device" that is not an emulator; emulator targets take the first entry
// named by the emulator convention; named targets must match exactly.
func (b *Bridge) ResolveDevice(ctx context.Context, kind config.TargetKind, named string) (string, error) {
	out, err := b.run(ctx, "devices")
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		id, state := fields[0], fields[1]
		isEmulator := strings.HasPrefix(id, "emulator")

		switch kind {
		case config.TargetDevice:
			if state == "device" && !isEmulator {
				return id, nil
			}
		case config.TargetEmulator:
			if state == "device" && isEmulator {
				return id, nil
			}
		case config.TargetNamed:
			if id == named {
				return id, nil
			}
		}
	}

	if kind == config.TargetEmulator {
		return "", ErrEmulatorNotFound
	}
	return "", ErrDeviceNotFound
}

// PID resolves the on-device process id for the app package, retrying while
// the process is not yet listed; right after launch `ps` may not show it.
func (b *Bridge) PID(ctx context.Context, deviceID, pkg string, attempts int, delay time.Duration) (string, error) {
	return retry.Do(ctx, func(ctx context.Context) (string, error) {
		out, err := b.run(ctx, "-s", deviceID, "shell", fmt.Sprintf("ps | grep %s", pkg))
		if err != nil {
			// grep exits non-zero when nothing matched; treat that as
			// "not ready yet" rather than a hard failure.
			if strings.TrimSpace(out) == "" {
				return "", nil
			}
			return "", err
		}
		return parsePID(out, pkg), nil
	}, func(pid string) bool {
		return pid != ""
	}, attempts, delay, fmt.Sprintf("process listing for %s on %s", pkg, deviceID))
}

// parsePID extracts the PID column from a `ps | grep` line whose final
// column is the package name.
func parsePID(out, pkg string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[len(fields)-1] == pkg {
			return fields[1]
		}
	}
	return ""
}

// Forward maps a local TCP port to a device-local remote socket.
func (b *Bridge) Forward(ctx context.Context, deviceID string, localPort int, remote string) error {
	_, err := b.run(ctx, "-s", deviceID, "forward", fmt.Sprintf("tcp:%d", localPort), remote)
	return err
}

// RemoveForward removes the forward for the local port.
func (b *Bridge) RemoveForward(ctx context.Context, deviceID string, localPort int) error {
	out, err := b.run(ctx, "-s", deviceID, "forward", "--remove", fmt.Sprintf("tcp:%d", localPort))
	if err != nil {
		log.Debug("forward removal output", "output", out)
	}
	return err
}

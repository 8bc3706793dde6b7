package launcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
	"howett.net/plist"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/proc"
	"github.com/webviewtools/wvd/internal/project"
	"github.com/webviewtools/wvd/internal/retry"
	"github.com/webviewtools/wvd/internal/tunnel"
)

// IOS launches and attaches through the webkit debug proxy.
type IOS struct {
	Runner proc.Runner
	HTTP   Getter

	// GOOS overrides the host OS check in tests; empty means runtime.GOOS.
	GOOS string

	proxy     *tunnel.WebkitProxy
	appHandle *proc.Handle
}

func (i *IOS) hostSupported() bool {
	goos := i.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return goos == "darwin"
}

// Launch builds and runs the app on a wired device or the simulator.
func (i *IOS) Launch(ctx context.Context, spec *config.LaunchSpec) (*Result, error) {
	if !i.hostSupported() {
		return nil, ErrUnsupportedHost
	}

	switch spec.TargetKind() {
	case config.TargetDevice:
		if err := i.launchDevice(ctx, spec); err != nil {
			return nil, err
		}
	case config.TargetNamed:
		if err := i.launchSimulator(ctx, spec, spec.Target); err != nil {
			return nil, err
		}
	default:
		if err := i.launchSimulator(ctx, spec, ""); err != nil {
			return nil, err
		}
	}
	return &Result{}, nil
}

// launchDevice builds for a wired device, installs the produced archive,
// then starts the debug proxy and launches the app by bundle id.
func (i *IOS) launchDevice(ctx context.Context, spec *config.LaunchSpec) error {
	out, err := i.Runner.CombinedOutput(ctx, "cordova", []string{"build", "ios", "--device"}, spec.Cwd)
	if strings.Contains(out, "ERROR") {
		return &BuildError{Output: out}
	}
	if err != nil {
		return fmt.Errorf("cordova build ios failed: %w", err)
	}

	artifact, err := findArtifact(filepath.Join(spec.Cwd, "platforms", "ios", "build", "device"), ".ipa", ".app")
	if err != nil {
		return err
	}

	if _, err := i.Runner.CombinedOutput(ctx, "ideviceinstaller", []string{"-i", artifact}, spec.Cwd); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("ideviceinstaller not found. Install it with: brew install ideviceinstaller")
		}
		return fmt.Errorf("failed to install %s: %w", artifact, err)
	}

	bundleID, err := project.BundleID(spec.Cwd)
	if err != nil {
		return err
	}

	if err := i.ensureProxy(ctx, spec.IOSProxyPort, spec.WebkitRangeMin, spec.WebkitRangeMax); err != nil {
		return err
	}

	return i.launchApp(ctx, bundleID, spec.AppStepTimeout)
}

// launchApp starts the installed app by bundle id and waits briefly for an
// immediate failure; a process still alive after the step timeout is
// considered launched.
func (i *IOS) launchApp(ctx context.Context, bundleID string, stepTimeout time.Duration) error {
	handle, err := i.Runner.Start(ctx, "idevicedebug", []string{"run", bundleID}, "")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("idevicedebug not found. Install it with: brew install libimobiledevice")
		}
		return fmt.Errorf("failed to launch %s: %w", bundleID, err)
	}
	i.appHandle = handle

	done := make(chan error, 1)
	go func() {
		done <- handle.Wait()
	}()

	select {
	case err := <-done:
		return fmt.Errorf("app %s exited during launch: %v", bundleID, err)
	case <-time.After(stepTimeout):
		log.Debug("app launched", "bundle", bundleID)
		return nil
	}
}

// launchSimulator runs the app on the simulator, with an optional named
// target. A failed named-target run is retried as a target listing so the
// operator sees what is actually available.
func (i *IOS) launchSimulator(ctx context.Context, spec *config.LaunchSpec, target string) error {
	args := []string{"emulate", "ios"}
	if target != "" {
		args = append(args, "--target="+target)
	}

	out, err := i.Runner.CombinedOutput(ctx, "cordova", args, spec.Cwd)
	if strings.Contains(out, "ERROR") {
		return &BuildError{Output: out}
	}
	if err != nil {
		if target != "" {
			listOut, listErr := i.Runner.CombinedOutput(ctx, "cordova", []string{"run", "ios", "--list"}, spec.Cwd)
			if listErr == nil {
				return fmt.Errorf("failed to run on target %q: %w\navailable targets:\n%s", target, err, filterTargetList(listOut))
			}
		}
		return fmt.Errorf("cordova emulate ios failed: %w", err)
	}
	return nil
}

// filterTargetList keeps the lines of `cordova run ios --list` that name
// targets, dropping banners and blanks.
func filterTargetList(out string) string {
	var targets []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") || strings.HasPrefix(line, "Available") {
			continue
		}
		targets = append(targets, "  "+line)
	}
	return strings.Join(targets, "\n")
}

// Attach starts the webkit debug proxy, resolves the on-device app path,
// picks the per-device debug port off the proxy's root listing, then polls
// that port's listing until the app's webview shows up.
func (i *IOS) Attach(ctx context.Context, spec *config.AttachSpec) (*Endpoint, error) {
	if !i.hostSupported() {
		return nil, ErrUnsupportedHost
	}

	if err := i.ensureProxy(ctx, spec.IOSProxyPort, spec.WebkitRangeMin, spec.WebkitRangeMax); err != nil {
		return nil, err
	}

	appPath, err := i.resolveAppPath(ctx, spec)
	if err != nil {
		return nil, err
	}

	devicePort, err := i.resolveDevicePort(ctx, spec)
	if err != nil {
		return nil, err
	}
	log.Debug("per-device debug port resolved", "port", devicePort)

	encoded := url.PathEscape(appPath)
	listURL := fmt.Sprintf("http://localhost:%d/json", devicePort)

	matched, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
		body, err := i.HTTP.Get(ctx, listURL)
		if err != nil {
			return "", err
		}
		for _, entry := range gjson.Parse(body).Array() {
			if u := entry.Get("url").String(); strings.Contains(u, encoded) {
				return u, nil
			}
		}
		return "", nil
	}, func(u string) bool {
		return u != ""
	}, spec.AttachAttempts, spec.AttachDelay, "webview listing")
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, &WebviewNotFoundError{AppPath: appPath, Attempts: spec.AttachAttempts}
		}
		return nil, err
	}

	return &Endpoint{Port: devicePort, WebRoot: spec.WebRoot, URL: matched}, nil
}

// resolveDevicePort polls the proxy's root listing for the first entry
// matching the target kind: simulators carry deviceId "SIMULATOR", wired
// devices anything else. The proxy exposes its HTTP listing a beat after
// spawn, so an unreachable or empty listing counts as not-ready and is
// retried under the attach bounds.
func (i *IOS) resolveDevicePort(ctx context.Context, spec *config.AttachSpec) (int, error) {
	rootURL := fmt.Sprintf("http://localhost:%d/json", spec.IOSProxyPort)
	wantSimulator := spec.TargetKind() != config.TargetDevice

	port, err := retry.Do(ctx, func(ctx context.Context) (int, error) {
		body, err := i.HTTP.Get(ctx, rootURL)
		if err != nil {
			log.Debug("debug proxy listing not reachable yet", "error", err)
			return 0, nil
		}
		return pickDevicePort(body, wantSimulator)
	}, func(p int) bool {
		return p != 0
	}, spec.AttachAttempts, spec.AttachDelay, "debug proxy device listing")
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			kind := "device"
			if wantSimulator {
				kind = "simulator"
			}
			return 0, fmt.Errorf("debug proxy listed no %s targets after %d attempts", kind, spec.AttachAttempts)
		}
		return 0, err
	}
	return port, nil
}

// pickDevicePort extracts the per-device port from the first listing entry
// of the wanted kind. Zero with no error means no such entry yet.
func pickDevicePort(body string, wantSimulator bool) (int, error) {
	for _, entry := range gjson.Parse(body).Array() {
		isSimulator := entry.Get("deviceId").String() == "SIMULATOR"
		if isSimulator != wantSimulator {
			continue
		}
		hostPort := entry.Get("url").String()
		idx := strings.LastIndex(hostPort, ":")
		if idx < 0 {
			return 0, fmt.Errorf("debug proxy listing entry has no port: %q", hostPort)
		}
		port, err := strconv.Atoi(hostPort[idx+1:])
		if err != nil {
			return 0, fmt.Errorf("debug proxy listing entry has a malformed port: %q", hostPort)
		}
		return port, nil
	}
	return 0, nil
}

// resolveAppPath finds where the app lives from the webview's perspective:
// the installed path on a wired device, the built bundle for the simulator.
func (i *IOS) resolveAppPath(ctx context.Context, spec *config.AttachSpec) (string, error) {
	if spec.TargetKind() == config.TargetDevice {
		bundleID, err := project.BundleID(spec.WebRoot)
		if err != nil {
			return "", err
		}
		return i.installedAppPath(ctx, bundleID)
	}
	return findArtifact(filepath.Join(spec.WebRoot, "platforms", "ios", "build", "emulator"), ".app")
}

// installedAppPath looks the bundle id up in the device's installed-app
// listing and returns its install path.
func (i *IOS) installedAppPath(ctx context.Context, bundleID string) (string, error) {
	out, err := i.Runner.CombinedOutput(ctx, "ideviceinstaller", []string{"-l", "-o", "xml"}, "")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("ideviceinstaller not found. Install it with: brew install ideviceinstaller")
		}
		return "", fmt.Errorf("failed to list installed apps: %w", err)
	}

	var apps []map[string]interface{}
	if _, err := plist.Unmarshal([]byte(out), &apps); err != nil {
		return "", fmt.Errorf("failed to parse installed app listing: %w", err)
	}
	for _, app := range apps {
		if id, _ := app["CFBundleIdentifier"].(string); id == bundleID {
			if path, _ := app["Path"].(string); path != "" {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("app %s is not installed on the device", bundleID)
}

// ensureProxy (re)starts the webkit debug proxy with the given ports.
func (i *IOS) ensureProxy(ctx context.Context, proxyPort, rangeMin, rangeMax int) error {
	if i.proxy != nil {
		i.proxy.Stop()
	}
	i.proxy = tunnel.NewWebkitProxy(i.Runner, proxyPort, rangeMin, rangeMax)
	return i.proxy.Start(ctx)
}

// findArtifact returns the first entry in dir carrying one of the
// extensions.
func findArtifact(dir string, exts ...string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w (looked in %s)", ErrArtifactNotFound, dir)
	}
	for _, entry := range entries {
		for _, ext := range exts {
			if strings.HasSuffix(entry.Name(), ext) {
				return filepath.Join(dir, entry.Name()), nil
			}
		}
	}
	return "", fmt.Errorf("%w (looked in %s)", ErrArtifactNotFound, dir)
}

// Close stops the debug proxy and the app-launch helper, best effort.
func (i *IOS) Close(ctx context.Context) {
	if i.appHandle != nil {
		i.appHandle.Kill()
		i.appHandle = nil
	}
	if i.proxy != nil {
		i.proxy.Stop()
		i.proxy = nil
	}
}

package launcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/webviewtools/wvd/internal/adb"
	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/devserver"
	"github.com/webviewtools/wvd/internal/proc"
	"github.com/webviewtools/wvd/internal/project"
	"github.com/webviewtools/wvd/internal/tunnel"
)

// Android launches and attaches over the adb device bridge.
type Android struct {
	Runner proc.Runner
	Bridge *adb.Bridge
	Tunnel *tunnel.Manager
}

// targetFlag maps the spec's target onto the run command's flag.
func targetFlag(kind config.TargetKind, target string) string {
	switch kind {
	case config.TargetDevice:
		return "--device"
	case config.TargetNamed:
		return "--target=" + target
	default:
		return "--emulator"
	}
}

// Launch builds and runs the app on the target. An Ionic project with live
// reload enabled delegates entirely to the dev-server path: the dev server
// performs the run itself and its output drives readiness. Otherwise the run
// command executes to completion and its combined output is scanned for the
// tool's ERROR marker.
func (a *Android) Launch(ctx context.Context, spec *config.LaunchSpec) (*Result, error) {
	flavor, err := project.DetectFlavor(spec.Cwd)
	if err != nil {
		return nil, err
	}

	flag := targetFlag(spec.TargetKind(), spec.Target)

	if spec.LiveReload && flavor == project.FlavorIonic {
		args := []string{"run", "android", flag, "--livereload"}
		server, err := devserver.Start(ctx, spec, args, a.Runner)
		if err != nil {
			server.Stop()
			return nil, err
		}
		return &Result{DevServer: server}, nil
	}
	if spec.LiveReload {
		log.Warn("live reload requires an Ionic project; running without it")
	}

	args := []string{"run", "android", flag, "--verbose"}
	log.Debug("running build", "tool", flavor.String(), "args", args)
	out, err := a.Runner.CombinedOutput(ctx, flavor.String(), args, spec.Cwd)
	if strings.Contains(out, "ERROR") {
		return nil, &BuildError{Output: out}
	}
	if err != nil {
		return nil, fmt.Errorf("%s run android failed: %w", flavor.String(), err)
	}
	return &Result{}, nil
}

// Attach resolves the device, the app package and its PID, forwards the
// debug port to the app's webview devtools socket, and returns a plain TCP
// endpoint.
func (a *Android) Attach(ctx context.Context, spec *config.AttachSpec) (*Endpoint, error) {
	deviceID, err := a.Bridge.ResolveDevice(ctx, spec.TargetKind(), spec.Target)
	if err != nil {
		return nil, err
	}
	log.Debug("device resolved", "device", deviceID)

	pkg, err := project.AndroidPackage(spec.WebRoot)
	if err != nil {
		return nil, err
	}

	pid, err := a.Bridge.PID(ctx, deviceID, pkg, config.DefaultPIDAttempts, config.DefaultPIDDelay)
	if err != nil {
		return nil, err
	}
	log.Debug("app process found", "package", pkg, "pid", pid)

	if _, err := a.Tunnel.ForwardWebview(ctx, deviceID, spec.Port, pid); err != nil {
		return nil, err
	}

	return &Endpoint{Port: spec.Port, WebRoot: spec.WebRoot}, nil
}

// Close removes the active port forward, best effort.
func (a *Android) Close(ctx context.Context) {
	a.Tunnel.Teardown(ctx)
}

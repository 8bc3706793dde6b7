package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/devserver"
	"github.com/webviewtools/wvd/internal/proc"
	"github.com/webviewtools/wvd/internal/project"
)

// Opener is the external browser-launch capability.
type Opener interface {
	// Open launches a debuggable browser on url using the sandboxed
	// profile directory and remote-debugging port.
	Open(ctx context.Context, url, profileDir string, debugPort int) error
}

// Browser serves the app from the dev server and debugs it in a desktop
// browser. Supported for Ionic projects only; launch self-attaches, so no
// separate attach pass runs afterwards.
type Browser struct {
	Runner proc.Runner
	Opener Opener

	// DebugPort is the browser's remote debugging port.
	DebugPort int
}

// Launch starts the dev server in serve mode and opens the browser on the
// served URL. On any failure after the server spawned, the server is killed
// before the error propagates so nothing leaks.
func (b *Browser) Launch(ctx context.Context, spec *config.LaunchSpec) (*Result, error) {
	flavor, err := project.DetectFlavor(spec.Cwd)
	if err != nil {
		return nil, err
	}
	if flavor != project.FlavorIonic {
		return nil, ErrUnsupportedProject
	}

	args := []string{"serve", "--nobrowser"}
	if spec.DevServerAddress != "" {
		args = append(args, "--address", spec.DevServerAddress)
	}
	if spec.DevServerPort != 0 {
		args = append(args, "--port", fmt.Sprintf("%d", spec.DevServerPort))
	}

	server, err := devserver.Start(ctx, spec, args, b.Runner)
	if err != nil {
		server.Stop()
		return nil, err
	}

	profileDir := filepath.Join(config.SettingsHome(), "chrome_profile")
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to create browser profile directory: %w", err)
	}

	if err := b.Opener.Open(ctx, server.URL, profileDir, b.DebugPort); err != nil {
		server.Stop()
		return nil, err
	}

	return &Result{
		DevServer: server,
		Endpoint:  &Endpoint{Port: b.DebugPort, WebRoot: spec.Cwd, URL: server.URL},
	}, nil
}

// Attach connects to an already-running debuggable browser.
func (b *Browser) Attach(ctx context.Context, spec *config.AttachSpec) (*Endpoint, error) {
	return &Endpoint{Port: spec.Port, WebRoot: spec.WebRoot}, nil
}

// Close is a no-op. The browser outlives the debug session; the dev server
// is owned and killed by the session.
func (b *Browser) Close(ctx context.Context) {}

// ChromeOpener launches Chrome/Chromium with a sandboxed profile and the
// remote debugging port enabled.
type ChromeOpener struct {
	Runner proc.Runner
}

func chromeCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome", "google-chrome", "chromium"}
	case "windows":
		return []string{"chrome", "chrome.exe"}
	default:
		return []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}
	}
}

// Open starts the first Chrome-like binary found on the host.
func (c *ChromeOpener) Open(ctx context.Context, url, profileDir string, debugPort int) error {
	var name string
	for _, candidate := range chromeCandidates() {
		if _, err := exec.LookPath(candidate); err == nil {
			name = candidate
			break
		}
	}
	if name == "" {
		return fmt.Errorf("no Chrome or Chromium browser found on PATH")
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", debugPort),
		"--no-first-run",
		"--user-data-dir=" + profileDir,
		url,
	}
	if _, err := c.Runner.Start(ctx, name, args, ""); err != nil {
		return fmt.Errorf("failed to launch %s: %w", name, err)
	}
	log.Debug("browser launched", "browser", name, "url", url, "debugPort", debugPort)
	return nil
}

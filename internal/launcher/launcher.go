// Package launcher implements the per-platform launch and attach sequences
// that produce a normalized debug endpoint: Android over an adb port
// forward, iOS over the webkit debug proxy, and a desktop browser against
// the dev server.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/webviewtools/wvd/internal/adb"
	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/devserver"
	"github.com/webviewtools/wvd/internal/proc"
	"github.com/webviewtools/wvd/internal/tunnel"
)

// Endpoint is the normalized result of an attach sequence, handed to the
// debug-protocol layer to begin a session.
type Endpoint struct {
	// Port is the local network port the debugger connects to.
	Port int

	// WebRoot is the content root served to the debugger.
	WebRoot string

	// URL identifies the specific debug target where the transport needs
	// one (iOS webview URL, browser page URL). Empty for plain TCP.
	URL string
}

// Result is what a platform launch produces. The session takes ownership of
// DevServer when set. Endpoint is set only when the platform self-attaches
// during launch (browser), making a separate attach pass unnecessary.
type Result struct {
	DevServer *devserver.Server
	Endpoint  *Endpoint
}

// Platform sequences one platform's launch and attach.
type Platform interface {
	// Launch builds, installs and runs the app for the launch spec.
	Launch(ctx context.Context, spec *config.LaunchSpec) (*Result, error)

	// Attach discovers the running app's debug endpoint.
	Attach(ctx context.Context, spec *config.AttachSpec) (*Endpoint, error)

	// Close releases platform resources (forwards, proxy processes),
	// best effort.
	Close(ctx context.Context)
}

// Deps groups the collaborators shared by the platform launchers.
type Deps struct {
	Runner proc.Runner
	Bridge *adb.Bridge
	Tunnel *tunnel.Manager
	HTTP   Getter
	Opener Opener

	// DebugPort is the local debug port, used by the browser path.
	DebugPort int
}

// ForPlatform returns the launch/attach strategy for the platform.
func ForPlatform(p config.Platform, d Deps) (Platform, error) {
	switch p {
	case config.PlatformAndroid:
		return &Android{Runner: d.Runner, Bridge: d.Bridge, Tunnel: d.Tunnel}, nil
	case config.PlatformIOS:
		return &IOS{Runner: d.Runner, HTTP: d.HTTP}, nil
	case config.PlatformBrowser:
		return &Browser{Runner: d.Runner, Opener: d.Opener, DebugPort: d.DebugPort}, nil
	default:
		return nil, &config.ErrUnknownPlatform{Platform: string(p)}
	}
}

// Errors shared across platforms.
var (
	// ErrUnsupportedHost means the host OS lacks the platform's toolchain.
	ErrUnsupportedHost = errors.New("iOS debugging requires macOS with the iOS toolchain installed")

	// ErrUnsupportedProject means the project flavor cannot use the
	// requested platform path.
	ErrUnsupportedProject = errors.New("browser debugging is only supported for Ionic projects")

	// ErrArtifactNotFound means the expected build output is missing.
	ErrArtifactNotFound = errors.New("no built app artifact found; run the platform build first")
)

// BuildError carries the full tool output of a failed build/run invocation.
type BuildError struct {
	Output string
}

func (e *BuildError) Error() string {
	return "the build or run command failed:\n" + e.Output
}

// WebviewNotFoundError means the debug proxy never listed a webview for the
// app within the configured attempts.
type WebviewNotFoundError struct {
	AppPath  string
	Attempts int
}

func (e *WebviewNotFoundError) Error() string {
	return fmt.Sprintf("no debuggable webview found for %s after %d attempts; is the app running in the foreground?", e.AppPath, e.Attempts)
}

// Getter is the HTTP GET capability used for debug-proxy discovery.
type Getter interface {
	Get(ctx context.Context, url string) (string, error)
}

// HTTPGetter is the production Getter over net/http.
type HTTPGetter struct {
	Client *http.Client
}

// NewHTTPGetter returns a Getter with a short per-request timeout; callers
// wrap discovery in their own retry loops.
func NewHTTPGetter() *HTTPGetter {
	return &HTTPGetter{Client: &http.Client{Timeout: 5 * time.Second}}
}

// Get fetches url and returns the body text.
func (g *HTTPGetter) Get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return string(body), nil
}

// Package session owns one debug session's lifecycle: launch, attach and
// disconnect, plus exclusive ownership of the dev-server process and the
// device tunnel so neither outlives the session.
package session

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/webviewtools/wvd/internal/adb"
	"github.com/webviewtools/wvd/internal/cdp"
	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/devserver"
	"github.com/webviewtools/wvd/internal/launcher"
	"github.com/webviewtools/wvd/internal/proc"
	"github.com/webviewtools/wvd/internal/tunnel"
)

// Debugger is the debug-protocol collaborator: it turns a normalized
// endpoint into a live protocol session. The session never interprets
// protocol frames itself.
type Debugger interface {
	Attach(ctx context.Context, endpoint *launcher.Endpoint) (io.Closer, error)
}

// cdpDebugger adapts the cdp client to the Debugger interface.
type cdpDebugger struct {
	client *cdp.Client
}

func (d *cdpDebugger) Attach(ctx context.Context, endpoint *launcher.Endpoint) (io.Closer, error) {
	return d.client.Attach(ctx, endpoint)
}

// Options overrides session collaborators; zero fields get production
// defaults.
type Options struct {
	Runner   proc.Runner
	Debugger Debugger
	HTTP     launcher.Getter
	Opener   launcher.Opener
	Platform launcher.Platform
}

// Session drives one launch/attach/disconnect cycle. Fields are written
// only by the lifecycle methods; callers must serialize calls on a session,
// concurrent launches are not supported.
type Session struct {
	// ID correlates this session's log lines.
	ID string

	launchSpec *config.LaunchSpec
	attachSpec *config.AttachSpec
	platform   launcher.Platform
	debugger   Debugger

	mu        sync.Mutex
	devServer *devserver.Server
	conn      io.Closer
}

// New builds a session for the pair of specs. Both specs must target the
// same platform.
func New(launchSpec *config.LaunchSpec, attachSpec *config.AttachSpec, opts Options) (*Session, error) {
	runner := opts.Runner
	if runner == nil {
		runner = proc.NewExecRunner()
	}
	getter := opts.HTTP
	if getter == nil {
		getter = launcher.NewHTTPGetter()
	}
	opener := opts.Opener
	if opener == nil {
		opener = &launcher.ChromeOpener{Runner: runner}
	}
	debugger := opts.Debugger
	if debugger == nil {
		debugger = &cdpDebugger{client: cdp.NewClient(getter)}
	}

	platform := opts.Platform
	if platform == nil {
		bridge := adb.NewBridge(runner)
		var err error
		platform, err = launcher.ForPlatform(attachSpec.Platform, launcher.Deps{
			Runner:    runner,
			Bridge:    bridge,
			Tunnel:    tunnel.NewManager(bridge),
			HTTP:      getter,
			Opener:    opener,
			DebugPort: attachSpec.Port,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Session{
		ID:         uuid.NewString(),
		launchSpec: launchSpec,
		attachSpec: attachSpec,
		platform:   platform,
		debugger:   debugger,
	}, nil
}

// Launch runs the platform launch sequence and chains into attach. The
// browser path self-attaches during launch; every other platform goes
// through the attach discovery afterwards. Any failure after resources were
// acquired tears them down before returning.
func (s *Session) Launch(ctx context.Context) error {
	log.Info("Launching", "platform", s.launchSpec.Platform, "target", s.launchSpec.Target, "session", s.ID)

	result, err := s.platform.Launch(ctx, s.launchSpec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.devServer = result.DevServer
	s.mu.Unlock()

	if result.Endpoint != nil {
		err = s.attachEndpoint(ctx, result.Endpoint)
	} else {
		err = s.Attach(ctx)
	}
	if err != nil {
		s.cleanup(ctx)
		return err
	}
	return nil
}

// Attach discovers the platform's debug endpoint and hands it to the
// debug-protocol collaborator.
func (s *Session) Attach(ctx context.Context) error {
	log.Info("Attaching", "platform", s.attachSpec.Platform, "port", s.attachSpec.Port, "session", s.ID)

	endpoint, err := s.platform.Attach(ctx, s.attachSpec)
	if err != nil {
		return err
	}
	return s.attachEndpoint(ctx, endpoint)
}

func (s *Session) attachEndpoint(ctx context.Context, endpoint *launcher.Endpoint) error {
	conn, err := s.debugger.Attach(ctx, endpoint)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	log.Info("Debugger attached", "port", endpoint.Port, "session", s.ID)
	return nil
}

// Disconnect detaches the debugger, then tears down the tunnel and the dev
// server concurrently, waiting for both. Partial failures are logged, never
// raised: disconnect always completes and always clears both resources.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Warn("debugger detach failed", "error", err, "session", s.ID)
		}
	}

	s.cleanup(ctx)
	log.Info("Disconnected", "session", s.ID)
}

// cleanup releases the tunnel and dev server, concurrently and best-effort.
func (s *Session) cleanup(ctx context.Context) {
	s.mu.Lock()
	server := s.devServer
	s.devServer = nil
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.platform.Close(ctx)
	}()
	go func() {
		defer wg.Done()
		server.Stop()
	}()
	wg.Wait()
}

// DevServerURL returns the dev server's base URL, or empty when no dev
// server is running.
func (s *Session) DevServerURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.devServer == nil {
		return ""
	}
	return s.devServer.URL
}

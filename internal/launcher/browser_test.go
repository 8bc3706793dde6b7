package launcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/proc"
)

// serveScriptRunner stands in for the ionic binary with a shell script.
type serveScriptRunner struct {
	script string
	calls  []string
}

func (r *serveScriptRunner) Start(ctx context.Context, name string, args []string, dir string) (*proc.Handle, error) {
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	return proc.NewExecRunner().Start(ctx, "/bin/sh", []string{r.script}, dir)
}

func (r *serveScriptRunner) CombinedOutput(ctx context.Context, name string, args []string, dir string) (string, error) {
	return "", nil
}

type fakeOpener struct {
	url        string
	profileDir string
	debugPort  int
	err        error
}

func (f *fakeOpener) Open(ctx context.Context, url, profileDir string, debugPort int) error {
	f.url = url
	f.profileDir = profileDir
	f.debugPort = debugPort
	return f.err
}

func serveScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ionic.sh")
	body := "#!/bin/sh\necho \"[INFO] Running dev server: http://localhost:8100\"\n/bin/sleep 30\n"
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestBrowserLaunch_IonicServeScenario(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := t.TempDir()
	writeFile(t, root, "ionic.config.json", `{"name":"app"}`)

	runner := &serveScriptRunner{script: serveScript(t)}
	opener := &fakeOpener{}
	b := &Browser{Runner: runner, Opener: opener, DebugPort: 9222}

	spec, _ := config.NewLaunchSpec("browser", "", root, false)
	result, err := b.Launch(context.Background(), spec)
	if result != nil && result.DevServer != nil {
		defer result.DevServer.Stop()
	}
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if len(runner.calls) == 0 || runner.calls[0] != "ionic serve --nobrowser" {
		t.Fatalf("calls = %v, want ionic serve --nobrowser first", runner.calls)
	}
	if opener.url != "http://localhost:8100" {
		t.Fatalf("browser opened on %q, want the extracted dev server URL", opener.url)
	}
	if !strings.Contains(opener.profileDir, ".wvd") {
		t.Fatalf("profileDir = %q, want a sandboxed profile under the settings home", opener.profileDir)
	}
	if result.Endpoint == nil || result.Endpoint.Port != 9222 || result.Endpoint.URL != "http://localhost:8100" {
		t.Fatalf("endpoint = %+v, want self-attach endpoint on 9222", result.Endpoint)
	}
}

func TestBrowserLaunch_RejectsNonIonicProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "config.xml", `<widget id="com.example.app"></widget>`)

	b := &Browser{Runner: &serveScriptRunner{script: serveScript(t)}, Opener: &fakeOpener{}, DebugPort: 9222}
	spec, _ := config.NewLaunchSpec("browser", "", root, false)

	if _, err := b.Launch(context.Background(), spec); !errors.Is(err, ErrUnsupportedProject) {
		t.Fatalf("err = %v, want ErrUnsupportedProject", err)
	}
}

func TestBrowserLaunch_OpenerFailureKillsDevServer(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := t.TempDir()
	writeFile(t, root, "ionic.config.json", `{"name":"app"}`)

	opener := &fakeOpener{err: errors.New("no browser found")}
	b := &Browser{Runner: &serveScriptRunner{script: serveScript(t)}, Opener: opener, DebugPort: 9222}

	spec, _ := config.NewLaunchSpec("browser", "", root, false)
	result, err := b.Launch(context.Background(), spec)
	if err == nil {
		t.Fatal("expected opener failure to propagate")
	}
	if result != nil {
		t.Fatal("no result should be returned after cleanup")
	}
}

func TestForPlatform_Switch(t *testing.T) {
	deps := Deps{Runner: proc.NewExecRunner(), HTTP: NewHTTPGetter(), DebugPort: 9222}

	for _, tc := range []struct {
		platform config.Platform
		want     string
	}{
		{config.PlatformAndroid, "*launcher.Android"},
		{config.PlatformIOS, "*launcher.IOS"},
		{config.PlatformBrowser, "*launcher.Browser"},
	} {
		p, err := ForPlatform(tc.platform, deps)
		if err != nil {
			t.Fatalf("ForPlatform(%s): %v", tc.platform, err)
		}
		if got := typeName(p); got != tc.want {
			t.Fatalf("ForPlatform(%s) = %s, want %s", tc.platform, got, tc.want)
		}
	}

	if _, err := ForPlatform(config.Platform("tizen"), deps); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case *Android:
		return "*launcher.Android"
	case *IOS:
		return "*launcher.IOS"
	case *Browser:
		return "*launcher.Browser"
	default:
		return "unknown"
	}
}

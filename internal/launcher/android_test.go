package launcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/webviewtools/wvd/internal/adb"
	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/proc"
	"github.com/webviewtools/wvd/internal/tunnel"
)

// fakeRunner maps joined command lines to canned combined output. Start
// delegates to a real harmless process so handles behave.
type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

var _ proc.Runner = (*fakeRunner)(nil)

func (f *fakeRunner) Start(ctx context.Context, name string, args []string, dir string) (*proc.Handle, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return proc.NewExecRunner().Start(ctx, "/bin/sleep", []string{"30"}, "")
}

func (f *fakeRunner) CombinedOutput(ctx context.Context, name string, args []string, dir string) (string, error) {
	key := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, key)
	return f.outputs[key], f.errs[key]
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func cordovaProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "config.xml", `<widget id="com.example.app"></widget>`)
	writeFile(t, root, "platforms/android/app/src/main/AndroidManifest.xml",
		`<manifest package="com.example.app"></manifest>`)
	return root
}

func androidLauncher(runner *fakeRunner) *Android {
	bridge := adb.NewBridge(runner)
	return &Android{Runner: runner, Bridge: bridge, Tunnel: tunnel.NewManager(bridge)}
}

func TestAndroidLaunch_RunCommandShape(t *testing.T) {
	root := cordovaProject(t)
	runner := &fakeRunner{outputs: map[string]string{
		"cordova run android --device --verbose": "BUILD SUCCESSFUL\nLAUNCH SUCCESS\n",
	}}
	a := androidLauncher(runner)

	spec, _ := config.NewLaunchSpec("android", "device", root, false)
	result, err := a.Launch(context.Background(), spec)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if result.DevServer != nil {
		t.Fatal("manual run must not start a dev server")
	}
	if runner.calls[0] != "cordova run android --device --verbose" {
		t.Fatalf("call = %q", runner.calls[0])
	}
}

func TestAndroidLaunch_ErrorMarkerFailsBuild(t *testing.T) {
	root := cordovaProject(t)
	runner := &fakeRunner{outputs: map[string]string{
		"cordova run android --emulator --verbose": "compiling...\nERROR: something broke\n",
	}}
	a := androidLauncher(runner)

	spec, _ := config.NewLaunchSpec("android", "emulator", root, false)
	_, err := a.Launch(context.Background(), spec)

	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("err = %v, want *BuildError", err)
	}
	if !strings.Contains(buildErr.Output, "something broke") {
		t.Fatalf("build error should carry the full tool output, got %q", buildErr.Output)
	}
}

func TestAndroidLaunch_NamedTargetFlag(t *testing.T) {
	root := cordovaProject(t)
	runner := &fakeRunner{outputs: map[string]string{
		"cordova run android --target=emulator-5554 --verbose": "ok\n",
	}}
	a := androidLauncher(runner)

	spec, _ := config.NewLaunchSpec("android", "emulator-5554", root, false)
	if _, err := a.Launch(context.Background(), spec); err != nil {
		t.Fatalf("Launch: %v", err)
	}
}

func TestAndroidAttach_EndToEnd(t *testing.T) {
	root := cordovaProject(t)
	runner := &fakeRunner{outputs: map[string]string{
		"adb devices": "List of devices attached\nABC123\tdevice\n",
		"adb -s ABC123 shell ps | grep com.example.app": "u0_a1 4242 1 100 200 x 0 S com.example.app\n",
	}}
	a := androidLauncher(runner)

	spec, _ := config.NewAttachSpec("android", "device", root, 0)
	endpoint, err := a.Attach(context.Background(), spec)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if endpoint.Port != 9222 {
		t.Fatalf("Port = %d, want 9222", endpoint.Port)
	}
	if endpoint.WebRoot != root {
		t.Fatalf("WebRoot = %q, want %q", endpoint.WebRoot, root)
	}
	if endpoint.URL != "" {
		t.Fatalf("URL = %q, android endpoints are plain TCP", endpoint.URL)
	}

	want := "adb -s ABC123 forward tcp:9222 localabstract:webview_devtools_remote_4242"
	var found bool
	for _, call := range runner.calls {
		if call == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected forward call %q, got %v", want, runner.calls)
	}
}

func TestAndroidAttach_NoDevice(t *testing.T) {
	root := cordovaProject(t)
	runner := &fakeRunner{outputs: map[string]string{
		"adb devices": "List of devices attached\n",
	}}
	a := androidLauncher(runner)

	spec, _ := config.NewAttachSpec("android", "device", root, 0)
	if _, err := a.Attach(context.Background(), spec); !errors.Is(err, adb.ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
}

package adb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/proc"
	"github.com/webviewtools/wvd/internal/retry"
)

// fakeRunner maps joined command lines to canned outputs.
type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

var _ proc.Runner = (*fakeRunner)(nil)

func (f *fakeRunner) Start(ctx context.Context, name string, args []string, dir string) (*proc.Handle, error) {
	return nil, errors.New("not used")
}

func (f *fakeRunner) CombinedOutput(ctx context.Context, name string, args []string, dir string) (string, error) {
	key := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, key)
	return f.outputs[key], f.errs[key]
}

const deviceList = `List of devices attached
ABC123	device
emulator-5554	device
XYZ999	unauthorized
`

func TestResolveDevice_PhysicalDevice(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"adb devices": deviceList}}
	bridge := NewBridge(runner)

	id, err := bridge.ResolveDevice(context.Background(), config.TargetDevice, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "ABC123" {
		t.Fatalf("device = %q, want ABC123", id)
	}
}

func TestResolveDevice_Emulator(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"adb devices": deviceList}}
	bridge := NewBridge(runner)

	id, err := bridge.ResolveDevice(context.Background(), config.TargetEmulator, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "emulator-5554" {
		t.Fatalf("device = %q, want emulator-5554", id)
	}
}

func TestResolveDevice_Named(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"adb devices": deviceList}}
	bridge := NewBridge(runner)

	id, err := bridge.ResolveDevice(context.Background(), config.TargetNamed, "emulator-5554")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "emulator-5554" {
		t.Fatalf("device = %q, want emulator-5554", id)
	}
}

func TestResolveDevice_NoneMatching(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"adb devices": "List of devices attached\n\n"}}
	bridge := NewBridge(runner)

	if _, err := bridge.ResolveDevice(context.Background(), config.TargetDevice, ""); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
	if _, err := bridge.ResolveDevice(context.Background(), config.TargetEmulator, ""); !errors.Is(err, ErrEmulatorNotFound) {
		t.Fatalf("err = %v, want ErrEmulatorNotFound", err)
	}
}

func TestResolveDevice_UnauthorizedNotSelected(t *testing.T) {
	list := "List of devices attached\nXYZ999\tunauthorized\n"
	runner := &fakeRunner{outputs: map[string]string{"adb devices": list}}
	bridge := NewBridge(runner)

	if _, err := bridge.ResolveDevice(context.Background(), config.TargetDevice, ""); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound for unauthorized-only list", err)
	}
}

func TestPID_ParsesProcessListing(t *testing.T) {
	psOut := "u0_a123   4242  1750  1234567 123456 SyS_epoll_ 0000000000 S com.example.app\n"
	runner := &fakeRunner{outputs: map[string]string{
		"adb -s ABC123 shell ps | grep com.example.app": psOut,
	}}
	bridge := NewBridge(runner)

	pid, err := bridge.PID(context.Background(), "ABC123", "com.example.app", 5, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid != "4242" {
		t.Fatalf("pid = %q, want 4242", pid)
	}
}

func TestPID_ExhaustsWhenProcessNeverAppears(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{}}
	bridge := NewBridge(runner)

	_, err := bridge.PID(context.Background(), "ABC123", "com.example.app", 3, time.Millisecond)
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want *retry.ExhaustedError", err)
	}
	if got := len(runner.calls); got != 3 {
		t.Fatalf("adb called %d times, want 3", got)
	}
}

func TestForward_CommandShape(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{}}
	bridge := NewBridge(runner)

	if err := bridge.Forward(context.Background(), "ABC123", 9222, "localabstract:webview_devtools_remote_4242"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "adb -s ABC123 forward tcp:9222 localabstract:webview_devtools_remote_4242"
	if runner.calls[0] != want {
		t.Fatalf("call = %q, want %q", runner.calls[0], want)
	}
}

func TestRemoveForward_PropagatesError(t *testing.T) {
	key := "adb -s ABC123 forward --remove tcp:9222"
	runner := &fakeRunner{
		outputs: map[string]string{},
		errs:    map[string]error{key: fmt.Errorf("exit status 1")},
	}
	bridge := NewBridge(runner)

	if err := bridge.RemoveForward(context.Background(), "ABC123", 9222); err == nil {
		t.Fatal("expected error to propagate for caller to log")
	}
}

package devserver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/webviewtools/wvd/internal/config"
	"github.com/webviewtools/wvd/internal/proc"
)

// scriptRunner substitutes a shell script for the ionic binary.
type scriptRunner struct {
	script string
}

func (r *scriptRunner) Start(ctx context.Context, name string, args []string, dir string) (*proc.Handle, error) {
	return proc.NewExecRunner().Start(ctx, "/bin/sh", []string{r.script}, dir)
}

func (r *scriptRunner) CombinedOutput(ctx context.Context, name string, args []string, dir string) (string, error) {
	return proc.NewExecRunner().CombinedOutput(ctx, "/bin/sh", []string{r.script}, dir)
}

// notFoundRunner simulates the tool being absent from PATH.
type notFoundRunner struct{}

func (notFoundRunner) Start(ctx context.Context, name string, args []string, dir string) (*proc.Handle, error) {
	return nil, fmt.Errorf("exec: %q: %w", name, exec.ErrNotFound)
}

func (notFoundRunner) CombinedOutput(ctx context.Context, name string, args []string, dir string) (string, error) {
	return "", fmt.Errorf("exec: %q: %w", name, exec.ErrNotFound)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ionic.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func testLaunchSpec(t *testing.T) *config.LaunchSpec {
	t.Helper()
	spec, err := config.NewLaunchSpec("browser", "", t.TempDir(), false)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	spec.ServerReadyTimeout = 10 * time.Second
	spec.AppReadyTimeout = 10 * time.Second
	return spec
}

func TestStart_ServeModeExtractsURL(t *testing.T) {
	script := writeScript(t, `echo "[INFO] Running dev server: http://localhost:8100"
/bin/sleep 30
`)
	server, err := Start(context.Background(), testLaunchSpec(t), []string{"serve", "--nobrowser"}, &scriptRunner{script: script})
	if server != nil {
		defer server.Stop()
	}
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if server.URL != "http://localhost:8100" {
		t.Fatalf("URL = %q, want http://localhost:8100", server.URL)
	}
}

func TestStart_ToolMissingFriendlyMessage(t *testing.T) {
	_, err := Start(context.Background(), testLaunchSpec(t), []string{"serve"}, notFoundRunner{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "npm install -g ionic") {
		t.Fatalf("error %q should tell the user how to install ionic", err)
	}
}

func TestStart_ProcessExitsBeforeReady(t *testing.T) {
	script := writeScript(t, `echo "some unrelated output"
exit 0
`)
	server, err := Start(context.Background(), testLaunchSpec(t), []string{"serve"}, &scriptRunner{script: script})
	if server != nil {
		defer server.Stop()
	}
	if err == nil {
		t.Fatal("expected error when dev server exits before readiness")
	}
}

func TestStart_ServerStillKillableAfterTimeout(t *testing.T) {
	script := writeScript(t, `/bin/sleep 30
`)
	spec := testLaunchSpec(t)
	spec.ServerReadyTimeout = 100 * time.Millisecond

	server, err := Start(context.Background(), spec, []string{"serve"}, &scriptRunner{script: script})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if server == nil {
		t.Fatal("server handle must be returned on failure so the caller can kill it")
	}
	server.Stop()
}

package proc

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestCombinedOutputCapturesBothStreams(t *testing.T) {
	r := NewExecRunner()
	out, err := r.CombinedOutput(context.Background(), "sh", []string{"-c", "echo one; echo two >&2"}, "")
	if err != nil {
		t.Fatalf("CombinedOutput: %v", err)
	}
	if !strings.Contains(out, "one") || !strings.Contains(out, "two") {
		t.Fatalf("output = %q, want both streams", out)
	}
}

func TestCombinedOutputReturnsOutputOnFailure(t *testing.T) {
	r := NewExecRunner()
	out, err := r.CombinedOutput(context.Background(), "sh", []string{"-c", "echo boom; exit 3"}, "")
	if err == nil {
		t.Fatal("expected a non-zero exit error")
	}
	if !strings.Contains(out, "boom") {
		t.Fatalf("output = %q, want it preserved on failure", out)
	}
}

func TestStartMissingBinary(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Start(context.Background(), "definitely-not-a-real-binary-xyz", nil, "")
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("err = %v, want exec.ErrNotFound", err)
	}
}

func TestKillStopsLongRunningChild(t *testing.T) {
	r := NewExecRunner()
	handle, err := r.Start(context.Background(), "sleep", []string{"30"}, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if handle.Pid() == 0 {
		t.Fatal("expected a pid for a started child")
	}

	done := make(chan struct{})
	go func() {
		handle.Kill()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Kill did not return in time")
	}

	// Idempotent.
	handle.Kill()
}

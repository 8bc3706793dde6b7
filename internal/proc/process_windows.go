//go:build windows

package proc

import (
	"fmt"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows (no process groups via Setpgid).
func setSysProcAttr(cmd *exec.Cmd) {}

// killProcessGroup terminates the process tree on Windows using taskkill.
func killProcessGroup(pid int) {
	exec.Command("taskkill", "/T", "/PID", fmt.Sprintf("%d", pid)).Run()
}

// forceKillProcessGroup forcefully terminates the process tree on Windows.
func forceKillProcessGroup(pid int) {
	exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", pid)).Run()
}

//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

// KillProcessGroup kills a process and all its children using taskkill.
// /F = force kill, /T = terminate child processes (tree kill).
func KillProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	// Best-effort cleanup; callers keep their own fallback kill.
	_ = exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}

// IsolateGroup makes context cancellation kill cmd and its children.
func IsolateGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		KillProcessGroup(cmd.Process.Pid)
		return nil
	}
}

//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// KillProcessGroup kills a process and all its children by sending SIGKILL
// to the process group (negative PID).
func KillProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	// Best-effort cleanup; callers keep their own fallback kill.
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// IsolateGroup starts cmd in its own process group and replaces the default
// context cancellation with a kill of that whole group, so helpers spawned by
// the command die with it.
func IsolateGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		KillProcessGroup(cmd.Process.Pid)
		return nil
	}
}

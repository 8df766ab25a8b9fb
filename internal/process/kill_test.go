package process

// Notes:
// - KillProcessGroup: we only test with invalid PIDs to verify the function
//   doesn't panic. Cannot test with PID 0 (kills current process group) or
//   real PIDs.
// - IsolateGroup: cancellation is tested against a real sleep child on unix.

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// TestKillProcessGroup - Invalid PID Handling
// ---------------------------------------------------------------------------

func TestKillProcessGroup_InvalidPID(t *testing.T) {
	t.Parallel()

	KillProcessGroup(999999999)
	KillProcessGroup(0)
	KillProcessGroup(-1)
}

// ---------------------------------------------------------------------------
// TestIsolateGroup - Context cancellation kills the child
// ---------------------------------------------------------------------------

func TestIsolateGroup_CancelKillsChild(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("uses sleep(1)")
	}
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sleep", "30")
	IsolateGroup(cmd)

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected error from cancelled command")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("command ran %v after cancellation", elapsed)
	}
}

func TestIsolateGroup_NotStarted(t *testing.T) {
	t.Parallel()

	cmd := exec.Command("true")
	IsolateGroup(cmd)
	if err := cmd.Cancel(); err != nil {
		t.Errorf("Cancel() before start = %v, want nil", err)
	}
}

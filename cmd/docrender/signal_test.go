package main

// Notes:
// - notifyContext: only observable behavior is tested (cancellation via
//   stop() and parent propagation). OS signal delivery is not simulated.

import (
	"context"
	"testing"
)

// ---------------------------------------------------------------------------
// TestNotifyContext - Shutdown context lifecycle
// ---------------------------------------------------------------------------

func TestNotifyContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		stop       bool
		cancelRoot bool
		wantDone   bool
	}{
		{"live until signalled", false, false, false},
		{"stop cancels", true, false, true},
		{"parent cancellation propagates", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parent, cancel := context.WithCancel(context.Background())
			defer cancel()
			ctx, stop := notifyContext(parent)
			defer stop()

			if tt.stop {
				stop()
			}
			if tt.cancelRoot {
				cancel()
			}

			select {
			case <-ctx.Done():
				if !tt.wantDone {
					t.Fatal("context cancelled without a signal")
				}
			default:
				if tt.wantDone {
					t.Fatal("context still live")
				}
			}
		})
	}
}

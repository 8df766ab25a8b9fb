//go:build windows

package main

import (
	"context"
	"os"
	"os/signal"
)

// notifyContext returns a context cancelled on interrupt, which starts a
// graceful server shutdown. syscall.SIGTERM does not exist on Windows.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}

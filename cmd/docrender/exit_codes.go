package main

import (
	"errors"
	"os"

	docrender "github.com/alnah/go-docrender"
	"github.com/alnah/go-docrender/internal/config"
)

// Exit codes for the docrender CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess     = 0 // Clean shutdown or completed command
	ExitGeneral     = 1 // General/unexpected error
	ExitUsage       = 2 // Invalid flags, config, or validation
	ExitIO          = 3 // File not found, permission denied
	ExitBrowser     = 4 // Browser/Chrome errors
	ExitUnavailable = 5 // Database or blob store unreachable
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, docrender.ErrBrowserConnect) ||
		errors.Is(err, docrender.ErrPageCreate) ||
		errors.Is(err, docrender.ErrPageLoad) ||
		errors.Is(err, docrender.ErrPDFGeneration) {
		return ExitBrowser
	}

	// Backing services (exit 5)
	if errors.Is(err, ErrDatabase) ||
		errors.Is(err, ErrBlobStore) {
		return ExitUnavailable
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrArtifactDir) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrInvalidFlags) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrInvalidConfig) ||
		errors.Is(err, docrender.ErrInvalidDPI) ||
		errors.Is(err, docrender.ErrInvalidPageSize) ||
		errors.Is(err, docrender.ErrInvalidOrientation) ||
		errors.Is(err, docrender.ErrInvalidMargin) {
		return ExitUsage
	}

	return ExitGeneral
}

package main

import (
	"errors"
	"strings"

	docrender "github.com/alnah/go-docrender"
	"github.com/alnah/go-docrender/internal/config"
	"github.com/alnah/go-docrender/internal/hints"
)

// errorHint returns an actionable suggestion for a command error, or "".
func errorHint(err error) string {
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		return hints.ForConfigNotFound(triedPaths(err))
	case errors.Is(err, ErrDatabase):
		return hints.ForDatabase()
	case errors.Is(err, ErrBlobStore):
		return hints.ForBlobStore(errors.Is(err, errS3))
	case errors.Is(err, ErrArtifactDir):
		return hints.ForArtifactDir()
	case errors.Is(err, docrender.ErrBrowserConnect):
		return hints.ForBrowserConnect()
	}
	return ""
}

// triedPaths extracts the search list from a config lookup error.
func triedPaths(err error) []string {
	_, list, ok := strings.Cut(err.Error(), "tried ")
	if !ok {
		return nil
	}
	return strings.Split(list, ", ")
}

// Package hints provides actionable error hints for common startup failures.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"strings"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
}

// ForBrowserConnect returns hints for browser connection errors.
// Detects CI/Docker environment and suggests relevant environment variables.
func ForBrowserConnect() string {
	var hints []string

	inCI := os.Getenv("CI") != "" ||
		os.Getenv("GITHUB_ACTIONS") != "" ||
		os.Getenv("GITLAB_CI") != "" ||
		os.Getenv("JENKINS_URL") != ""

	if (inCI || IsInContainer()) && os.Getenv("ROD_NO_SANDBOX") != "1" {
		hints = append(hints, "set ROD_NO_SANDBOX=1 for Docker/CI")
	}
	if os.Getenv("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set ROD_BROWSER_BIN to use custom Chrome")
	}

	return formatHints(hints)
}

// ForDatabase returns hints for database connection or migration errors.
func ForDatabase() string {
	return format("check DOCRENDER_DATABASE_DSN; pass --migrate on first start; unset it to keep records in memory")
}

// ForBlobStore returns hints for template source storage errors.
func ForBlobStore(s3 bool) string {
	if s3 {
		return format("check AWS credentials, DOCRENDER_S3_REGION, and DOCRENDER_S3_ENDPOINT for S3-compatible stores")
	}
	return format("check DOCRENDER_BLOB_DIR points to a writable directory")
}

// ForArtifactDir returns a hint for artifact directory errors.
func ForArtifactDir() string {
	return format("check DOCRENDER_ARTIFACT_DIR points to a writable directory")
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config and the user config path among those searched.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml or set DOCRENDER_CONFIG"

	for _, p := range searchedPaths {
		if strings.Contains(p, "docrender") {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}

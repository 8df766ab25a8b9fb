package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/alnah/go-docrender/internal/config"
	"github.com/alnah/go-docrender/internal/fileutil"
)

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// popplerTools are the binaries the rasterizer shells out to.
var popplerTools = []string{"pdfinfo", "pdftoppm"}

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Chrome   chromeInfo `json:"chrome"`
	Poppler  []toolInfo `json:"poppler"`
	Dirs     []dirInfo  `json:"directories"`
	Env      envInfo    `json:"environment"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// chromeInfo holds Chrome/Chromium detection results.
type chromeInfo struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Sandbox bool   `json:"sandbox"`
}

// toolInfo holds one external binary lookup.
type toolInfo struct {
	Name    string `json:"name"`
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
}

// dirInfo holds one directory writability check.
type dirInfo struct {
	Role     string `json:"role"`
	Path     string `json:"path"`
	Writable bool   `json:"writable"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	NoSandbox     string `json:"rod_no_sandbox"`
	BrowserBin    string `json:"rod_browser_bin"`
}

// doctorProbe abstracts host lookups so checks can run against fakes.
type doctorProbe struct {
	lookChrome func() (string, bool)
	lookPath   func(string) (string, error)
	version    func(bin string, args ...string) (string, error)
	getenv     func(string) string
	stat       func(string) (os.FileInfo, error)
	writable   func(string) error
}

func defaultProbe() *doctorProbe {
	return &doctorProbe{
		lookChrome: launcher.LookPath,
		lookPath:   exec.LookPath,
		version:    commandVersion,
		getenv:     os.Getenv,
		stat:       os.Stat,
		writable:   fileutil.DirWritable,
	}
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(args []string, env *Environment) int {
	jsonOutput := false
	configName := ""
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--json":
			jsonOutput = true
		case (args[i] == "-c" || args[i] == "--config") && i+1 < len(args):
			i++
			configName = args[i]
		case strings.HasPrefix(args[i], "--config="):
			configName = strings.TrimPrefix(args[i], "--config=")
		}
	}

	cfg, err := loadConfig(commonFlags{config: configName}, loadEnvConfig())
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return exitCodeFor(err)
	}

	result := runDoctor(cfg, defaultProbe())

	if jsonOutput {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == statusErrors {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(cfg *config.Config, p *doctorProbe) *doctorResult {
	result := &doctorResult{
		Status: statusReady,
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			NoSandbox:  p.getenv("ROD_NO_SANDBOX"),
			BrowserBin: p.getenv("ROD_BROWSER_BIN"),
		},
	}

	checkChrome(result, p)
	checkPoppler(result, p)
	checkDirs(result, cfg, p)
	checkEnvironment(result, p)

	if len(result.Errors) > 0 {
		result.Status = statusErrors
	} else if len(result.Warnings) > 0 {
		result.Status = statusWarnings
	}
	return result
}

// checkChrome detects Chrome/Chromium installation.
// A missing browser is a warning: rod downloads one on first use.
func checkChrome(result *doctorResult, p *doctorProbe) {
	chromePath := result.Env.BrowserBin
	if chromePath == "" {
		var found bool
		chromePath, found = p.lookChrome()
		if !found {
			result.Warnings = append(result.Warnings,
				"Chrome/Chromium not found; a managed Chromium will be downloaded on first render. Set ROD_BROWSER_BIN to pin one")
			return
		}
	}

	if _, err := p.stat(chromePath); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Chrome not found at %s", chromePath))
		return
	}

	result.Chrome.Found = true
	result.Chrome.Path = chromePath
	if v, err := p.version(chromePath, "--version"); err == nil {
		result.Chrome.Version = v
	} else {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Could not get Chrome version: %v", err))
	}
	result.Chrome.Sandbox = result.Env.NoSandbox != "1"
}

// checkPoppler verifies the rasterizer binaries are on PATH.
func checkPoppler(result *doctorResult, p *doctorProbe) {
	for _, name := range popplerTools {
		info := toolInfo{Name: name}
		path, err := p.lookPath(name)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s not found on PATH. Install poppler-utils", name))
			result.Poppler = append(result.Poppler, info)
			continue
		}
		info.Found = true
		info.Path = path
		// Poppler prints its version banner to stderr and exits 0 or 99.
		if v, err := p.version(path, "-v"); err == nil {
			info.Version = v
		}
		result.Poppler = append(result.Poppler, info)
	}
}

// checkDirs verifies every directory the service writes to.
func checkDirs(result *doctorResult, cfg *config.Config, p *doctorProbe) {
	dirs := []dirInfo{
		{Role: "temp", Path: os.TempDir()},
		{Role: "artifacts", Path: cfg.Artifacts.Dir},
	}
	if cfg.Blob.Bucket == "" {
		dirs = append(dirs, dirInfo{Role: "templates", Path: cfg.Blob.LocalDir})
	}

	for _, d := range dirs {
		if err := p.writable(d.Path); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s directory not writable: %s", d.Role, d.Path))
		} else {
			d.Writable = true
		}
		result.Dirs = append(result.Dirs, d)
	}
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult, p *doctorProbe) {
	result.Env.Container, result.Env.ContainerHint = isContainer(p)

	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"} {
		if p.getenv(v) != "" {
			result.Env.CI = true
			break
		}
	}

	if (result.Env.Container || result.Env.CI) && result.Env.NoSandbox != "1" {
		result.Warnings = append(result.Warnings,
			"Container/CI detected but ROD_NO_SANDBOX not set. Set ROD_NO_SANDBOX=1")
	}
}

// isContainer detects if running in a container environment.
// Returns (isContainer, hint) where hint indicates which signal was detected.
func isContainer(p *doctorProbe) (bool, string) {
	if p.getenv("DOCRENDER_CONTAINER") == "1" {
		return true, "DOCRENDER_CONTAINER=1"
	}
	if _, err := p.stat("/.dockerenv"); err == nil {
		return true, "/.dockerenv"
	}
	if v := p.getenv("container"); v != "" {
		return true, "container=" + v
	}
	if p.getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// commandVersion returns the first line a binary prints for its version flag.
func commandVersion(bin string, args ...string) (string, error) {
	out, err := exec.Command(bin, args...).CombinedOutput() // #nosec G204 -- bin comes from PATH lookup
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line == "" && err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "docrender doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Chrome/Chromium")
	if r.Chrome.Found {
		fmt.Fprintf(w, "  [OK] Found at %s\n", r.Chrome.Path)
		if r.Chrome.Version != "" {
			fmt.Fprintf(w, "  [OK] Version: %s\n", r.Chrome.Version)
		}
		if r.Chrome.Sandbox {
			fmt.Fprintln(w, "  [OK] Sandbox: enabled")
		} else {
			fmt.Fprintln(w, "  [OK] Sandbox: disabled (ROD_NO_SANDBOX=1)")
		}
	} else {
		fmt.Fprintln(w, "  [WARN] Not found (managed download)")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Poppler")
	for _, t := range r.Poppler {
		if !t.Found {
			fmt.Fprintf(w, "  [ERROR] %s: not found\n", t.Name)
			continue
		}
		fmt.Fprintf(w, "  [OK] %s: %s\n", t.Name, t.Path)
		if t.Version != "" {
			fmt.Fprintf(w, "       %s\n", t.Version)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Directories")
	for _, d := range r.Dirs {
		if d.Writable {
			fmt.Fprintf(w, "  [OK] %s: %s\n", d.Role, d.Path)
		} else {
			fmt.Fprintf(w, "  [ERROR] %s: %s (not writable)\n", d.Role, d.Path)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		fmt.Fprintf(w, "  [OK] Container: detected (%s)\n", r.Env.ContainerHint)
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Status: Ready to serve")
	case statusWarnings:
		fmt.Fprintln(w, "Status: Ready with warnings")
	case statusErrors:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}

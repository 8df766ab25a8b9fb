package docrender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/alnah/go-docrender/internal/fileutil"
	"github.com/alnah/go-docrender/internal/process"
)

// Resolution bounds in dots per inch.
const (
	DefaultDPI = 150
	MinDPI     = 36
	MaxDPI     = 600
)

// Poppler binaries used for rasterization.
const (
	pdfinfoBin  = "pdfinfo"
	pdftoppmBin = "pdftoppm"
)

var (
	pagesPattern       = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)
	syntaxErrorPattern = regexp.MustCompile(`Syntax Error`)
)

// commandRunner abstracts command execution to enable testing without real subprocesses.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// pageSink receives rasterized pages in order.
type pageSink interface {
	Put(token string, page int, img image.Image) (string, error)
}

// Compile-time interface checks
var (
	_ commandRunner = (*execRunner)(nil)
	_ pageSink      = (*ArtifactStore)(nil)
)

// execRunner implements commandRunner using os/exec. Each command runs in
// its own process group, killed as a whole when ctx is cancelled.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	process.IsolateGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Rasterizer converts PDF pages to PNG artifacts using Poppler.
type Rasterizer struct {
	runner commandRunner
	sink   pageSink
	tokens TokenSource
	logger *zap.Logger
}

// RasterizerOption configures a Rasterizer.
type RasterizerOption func(*Rasterizer)

// WithTokenSource replaces the crypto/rand batch token source.
func WithTokenSource(ts TokenSource) RasterizerOption {
	return func(r *Rasterizer) {
		if ts != nil {
			r.tokens = ts
		}
	}
}

// WithRasterizerLogger sets the logger.
func WithRasterizerLogger(l *zap.Logger) RasterizerOption {
	return func(r *Rasterizer) {
		if l != nil {
			r.logger = l
		}
	}
}

// withCommandRunner injects a runner, bypassing Poppler (tests).
func withCommandRunner(cr commandRunner) RasterizerOption {
	return func(r *Rasterizer) {
		r.runner = cr
	}
}

// NewRasterizer creates a Rasterizer writing pages into store.
func NewRasterizer(store *ArtifactStore, opts ...RasterizerOption) *Rasterizer {
	return newRasterizer(store, opts...)
}

func newRasterizer(sink pageSink, opts ...RasterizerOption) *Rasterizer {
	r := &Rasterizer{
		runner: execRunner{},
		sink:   sink,
		tokens: NewRandomTokenSource(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateDPI reports whether dpi is usable; zero means DefaultDPI.
func ValidateDPI(dpi int) error {
	if dpi == 0 {
		return nil
	}
	if dpi < MinDPI || dpi > MaxDPI {
		return fmt.Errorf("%w: %d (must be between %d and %d)", ErrInvalidDPI, dpi, MinDPI, MaxDPI)
	}
	return nil
}

// Rasterize renders every page of pdf at dpi (0 = DefaultDPI) and stores
// them under one fresh batch token. Returned filenames follow page order.
// Pages already stored are kept when a later page fails.
func (r *Rasterizer) Rasterize(ctx context.Context, pdf []byte, dpi int) ([]string, error) {
	if err := ValidateDPI(dpi); err != nil {
		return nil, err
	}
	if dpi == 0 {
		dpi = DefaultDPI
	}
	if len(pdf) == 0 {
		return nil, &InvalidDocumentError{Reason: "empty document"}
	}

	token, err := r.tokens.Token()
	if err != nil {
		return nil, &RasterizationError{Err: err}
	}

	workDir, cleanup, err := fileutil.MakeTempDir()
	if err != nil {
		return nil, &RasterizationError{Err: err}
	}
	defer cleanup()

	input := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, &RasterizationError{Err: fmt.Errorf("writing input: %w", err)}
	}

	pages, err := r.pageCount(ctx, input)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	names := make([]string, 0, pages)
	for n := 1; n <= pages; n++ {
		img, err := r.renderPage(ctx, input, workDir, n, dpi)
		if err != nil {
			return nil, err
		}
		name, err := r.sink.Put(token, n, img)
		if err != nil {
			return nil, &RasterizationError{Page: n, Err: err}
		}
		names = append(names, name)
	}

	r.logger.Info("pdf rasterized",
		zap.String("batch", token),
		zap.Int("pages", pages),
		zap.Int("dpi", dpi),
		zap.Duration("elapsed", time.Since(start)))
	return names, nil
}

// pageCount asks pdfinfo for the number of pages.
func (r *Rasterizer) pageCount(ctx context.Context, input string) (int, error) {
	stdout, stderr, err := r.runner.Run(ctx, pdfinfoBin, input)
	if err != nil {
		if unavailable := backendError(pdfinfoBin, err); unavailable != nil {
			return 0, unavailable
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, &RasterizationError{Err: ctxErr}
		}
		return 0, &CorruptDocumentError{Detail: "unable to read page count", Err: commandError(err, stderr)}
	}

	m := pagesPattern.FindSubmatch(stdout)
	if m == nil {
		return 0, &CorruptDocumentError{Detail: "page count missing from document info"}
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil || n < 1 {
		return 0, &CorruptDocumentError{Detail: fmt.Sprintf("unusable page count %q", m[1])}
	}
	return n, nil
}

// renderPage runs pdftoppm for a single page and decodes the PNG it writes.
func (r *Rasterizer) renderPage(ctx context.Context, input, workDir string, page, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RasterizationError{Page: page, Err: err}
	}

	prefix := filepath.Join(workDir, "page-"+strconv.Itoa(page))
	p := strconv.Itoa(page)
	_, stderr, err := r.runner.Run(ctx, pdftoppmBin,
		"-f", p, "-l", p, "-png", "-singlefile", "-r", strconv.Itoa(dpi), input, prefix)
	if err != nil {
		if unavailable := backendError(pdftoppmBin, err); unavailable != nil {
			return nil, unavailable
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &RasterizationError{Page: page, Err: ctxErr}
		}
		if syntaxErrorPattern.Match(stderr) {
			return nil, &InvalidDocumentError{Reason: "malformed PDF syntax", Err: commandError(err, stderr)}
		}
		return nil, &RasterizationError{Page: page, Err: commandError(err, stderr)}
	}

	img, err := imaging.Open(prefix + ".png")
	if err != nil {
		return nil, &RasterizationError{Page: page, Err: fmt.Errorf("decoding page image: %w", err)}
	}
	return img, nil
}

// backendError reports a missing Poppler binary, or nil for any other failure.
func backendError(bin string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return &BackendUnavailableError{Backend: bin, Err: err}
	}
	return nil
}

// commandError attaches trimmed stderr to a command failure.
func commandError(err error, stderr []byte) error {
	msg := bytes.TrimSpace(stderr)
	if len(msg) == 0 {
		return err
	}
	const maxStderr = 512
	if len(msg) > maxStderr {
		msg = msg[:maxStderr]
	}
	return fmt.Errorf("%w: %s", err, msg)
}

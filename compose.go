package docrender

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/alnah/go-docrender/internal/fileutil"
	"github.com/alnah/go-docrender/internal/process"
)

// pdfRenderer abstracts PDF rendering from an HTML file to enable testing without a browser.
type pdfRenderer interface {
	RenderFromFile(ctx context.Context, filePath string, opts *proto.PagePrintToPDF) ([]byte, error)
	Close() error
}

// Compile-time interface checks
var (
	_ pdfRenderer = (*rodRenderer)(nil)
	_ Composer    = (*Compositor)(nil)
)

// defaultComposeTimeout bounds page load when the context carries no deadline.
const defaultComposeTimeout = 30 * time.Second

// Compositor turns merged HTML into PDF bytes using headless Chrome.
// A Compositor owns one browser and is not safe for concurrent use;
// share work across goroutines through a CompositorPool.
type Compositor struct {
	renderer pdfRenderer
	timeout  time.Duration
	logger   *zap.Logger
}

// CompositorOption configures a Compositor.
type CompositorOption func(*Compositor)

// WithComposeTimeout sets the page load timeout.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithComposeTimeout(d time.Duration) CompositorOption {
	if d <= 0 {
		panic("docrender: WithComposeTimeout duration must be positive")
	}
	return func(c *Compositor) {
		c.timeout = d
	}
}

// WithCompositorLogger sets the logger used for browser lifecycle events.
func WithCompositorLogger(l *zap.Logger) CompositorOption {
	return func(c *Compositor) {
		if l != nil {
			c.logger = l
		}
	}
}

// withRenderer injects a renderer, bypassing the browser (tests).
func withRenderer(r pdfRenderer) CompositorOption {
	return func(c *Compositor) {
		c.renderer = r
	}
}

// NewCompositor creates a Compositor. The browser is launched on first use.
func NewCompositor(opts ...CompositorOption) *Compositor {
	c := &Compositor{
		timeout: defaultComposeTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.renderer == nil {
		c.renderer = newRodRenderer(c.timeout, c.logger)
	}
	return c
}

// Compose renders html to PDF with the given page settings (nil = defaults).
// Page settings are validated first; every later failure is a *CompositionError.
// Markup problems never fail: the browser renders what it can.
func (c *Compositor) Compose(ctx context.Context, html string, page *PageSettings) ([]byte, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &CompositionError{Err: err}
	}

	tmpPath, cleanup, err := fileutil.WriteTempFile(html, "html")
	if err != nil {
		return nil, &CompositionError{Err: err}
	}
	defer cleanup()

	pdf, err := c.renderer.RenderFromFile(ctx, tmpPath, buildPDFOptions(page))
	if err != nil {
		return nil, &CompositionError{Err: err}
	}
	return pdf, nil
}

// Close releases browser resources.
func (c *Compositor) Close() error {
	if c.renderer != nil {
		return c.renderer.Close()
	}
	return nil
}

// buildPDFOptions constructs proto.PagePrintToPDF from page settings.
func buildPDFOptions(page *PageSettings) *proto.PagePrintToPDF {
	width, height, margin := resolvePageDimensions(page)
	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(width),
		PaperHeight:     floatPtr(height),
		MarginTop:       floatPtr(margin),
		MarginBottom:    floatPtr(margin),
		MarginLeft:      floatPtr(margin),
		MarginRight:     floatPtr(margin),
		PrintBackground: true,
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

// rodRenderer implements pdfRenderer using go-rod.
// Rod automatically downloads Chromium on first run if not found.
type rodRenderer struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	timeout  time.Duration
	logger   *zap.Logger
}

func newRodRenderer(timeout time.Duration, logger *zap.Logger) *rodRenderer {
	return &rodRenderer{timeout: timeout, logger: logger}
}

// ensureBrowser lazily connects to the browser.
func (r *rodRenderer) ensureBrowser() error {
	if r.browser != nil {
		return nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	r.browser = browser
	r.launcher = l
	r.logger.Debug("browser launched", zap.Int("pid", l.PID()))
	return nil
}

// Close releases browser resources and kills any leftover Chrome children.
func (r *rodRenderer) Close() error {
	if r.browser == nil {
		return nil
	}

	err := r.browser.Close()
	if r.launcher != nil {
		process.KillProcessGroup(r.launcher.PID())
		r.launcher.Kill()
	}
	r.browser = nil
	r.launcher = nil
	return err
}

// RenderFromFile opens a local HTML file in headless Chrome and renders it to PDF.
func (r *rodRenderer) RenderFromFile(ctx context.Context, filePath string, opts *proto.PagePrintToPDF) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.ensureBrowser(); err != nil {
		return nil, err
	}

	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "file://" + filePath})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer func() { _ = page.Close() }()

	// Wait for page to load with timeout from context or default
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := page.PDF(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFGeneration, err)
	}

	pdfBuf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFGeneration, err)
	}

	return pdfBuf, nil
}

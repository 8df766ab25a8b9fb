package docrender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Fetcher defaults.
const (
	DefaultFetchTimeout    = 60 * time.Second
	DefaultMaxDocumentSize = 50 << 20
	maxRedirects           = 10
)

// reasonNotPDF marks an InvalidDocumentError raised by the fetcher's content
// checks, as opposed to one raised while rasterizing.
const reasonNotPDF = "URL does not point to a valid PDF file"

// pdfMagic is the signature every PDF file starts with.
var pdfMagic = []byte("%PDF")

// ErrDocumentTooLarge is wrapped in a FetchError when the body exceeds the size cap.
var ErrDocumentTooLarge = errors.New("document exceeds maximum size")

// Fetcher downloads PDF documents from untrusted URLs.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchTimeout bounds the whole download, redirects and body included.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithFetchTimeout(d time.Duration) FetcherOption {
	if d <= 0 {
		panic("docrender: WithFetchTimeout duration must be positive")
	}
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// WithMaxDocumentSize caps the number of body bytes read.
func WithMaxDocumentSize(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithTransport replaces the HTTP transport (proxies, tests).
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(f *Fetcher) {
		f.client.Transport = rt
	}
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher with a 60s timeout, a 10-redirect limit and
// a 50 MiB body cap.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout:       DefaultFetchTimeout,
			CheckRedirect: limitRedirects,
		},
		maxBytes: DefaultMaxDocumentSize,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func limitRedirects(_ *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// Fetch downloads rawURL and returns the body when it looks like a PDF.
// Content is accepted if the declared media type is application/pdf, or the
// URL path ends in .pdf, or the body starts with %PDF.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := parseDocumentURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.transportError(rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Debug("fetch rejected by upstream",
			zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return nil, &FetchError{URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, f.transportError(rawURL, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &FetchError{
			URL: rawURL,
			Err: fmt.Errorf("%w: limit %d bytes", ErrDocumentTooLarge, f.maxBytes),
		}
	}

	if !looksLikePDF(resp.Header.Get("Content-Type"), u.Path, body) {
		return nil, &InvalidDocumentError{Reason: reasonNotPDF}
	}

	f.logger.Debug("document fetched",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))
	return body, nil
}

func (f *Fetcher) transportError(rawURL string, err error) error {
	if isTimeout(err) {
		return &FetchTimeoutError{URL: rawURL, Err: err}
	}
	return &FetchError{URL: rawURL, Err: err}
}

// parseDocumentURL accepts absolute http and https URLs only.
func parseDocumentURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func looksLikePDF(contentType, path string, body []byte) bool {
	if isPDFMediaType(contentType) {
		return true
	}
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return true
	}
	return bytes.HasPrefix(body, pdfMagic)
}

func isPDFMediaType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "application/pdf")
	}
	return mediaType == "application/pdf"
}

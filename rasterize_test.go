package docrender

// Notes:
// - Poppler is replaced by fakeRunner: pdfinfo answers with a canned page
//   count, pdftoppm writes a small PNG where the real binary would.
// - The real binaries are exercised by the integration tests.

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
)

// fakeRunner implements commandRunner for testing.
type fakeRunner struct {
	mu sync.Mutex

	pages       string // pdfinfo "Pages:" value; empty omits the line
	infoErr     error
	infoStderr  string
	ppmErr      error
	ppmStderr   string
	failPage    int // page number whose pdftoppm call fails (0 = none)
	skipWrite   bool
	cancelAfter int // cancel ctx after this many pdftoppm calls (0 = never)
	cancel      context.CancelFunc

	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))

	switch name {
	case pdfinfoBin:
		if f.infoErr != nil {
			return nil, []byte(f.infoStderr), f.infoErr
		}
		out := "Producer:       test\n"
		if f.pages != "" {
			out += "Pages:          " + f.pages + "\n"
		}
		return []byte(out + "Encrypted:      no\n"), nil, nil

	case pdftoppmBin:
		page, _ := strconv.Atoi(args[1])
		if f.cancelAfter > 0 && f.ppmCalls() > f.cancelAfter {
			f.cancel()
		}
		if f.ppmErr != nil && (f.failPage == 0 || f.failPage == page) {
			return nil, []byte(f.ppmStderr), f.ppmErr
		}
		if f.skipWrite {
			return nil, nil, nil
		}
		prefix := args[len(args)-1]
		// Encode the page number in the width so order is observable.
		img := imaging.New(page, 2, color.White)
		if err := imaging.Save(img, prefix+".png"); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func (f *fakeRunner) ppmCalls() int {
	n := 0
	for _, c := range f.calls {
		if c[0] == pdftoppmBin {
			n++
		}
	}
	return n
}

// fixedTokens is a TokenSource returning the same token.
type fixedTokens string

func (t fixedTokens) Token() (string, error) { return string(t), nil }

type failingTokens struct{}

func (failingTokens) Token() (string, error) { return "", errors.New("entropy exhausted") }

func newTestRasterizer(t *testing.T, runner *fakeRunner, opts ...RasterizerOption) (*Rasterizer, *ArtifactStore) {
	t.Helper()
	store := newTestStore(t)
	opts = append([]RasterizerOption{withCommandRunner(runner)}, opts...)
	return NewRasterizer(store, opts...), store
}

// ---------------------------------------------------------------------------
// TestRasterizer_Rasterize - Page order, naming, and storage
// ---------------------------------------------------------------------------

func TestRasterizer_Rasterize(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{pages: "3"}
	r, store := newTestRasterizer(t, runner)

	names, err := r.Rasterize(context.Background(), []byte(fakePDF), 150)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("got %d filenames, want 3: %v", len(names), names)
	}

	pattern := regexp.MustCompile(`^[a-f0-9]{8}_page_[1-3]\.png$`)
	token := strings.SplitN(names[0], "_", 2)[0]
	for i, name := range names {
		if !pattern.MatchString(name) {
			t.Errorf("filename %q does not match artifact pattern", name)
		}
		if want := fmt.Sprintf("%s_page_%d.png", token, i+1); name != want {
			t.Errorf("names[%d] = %q, want %q", i, name, want)
		}

		art, err := store.Open(name)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", name, err)
		}
		img, err := imaging.Decode(strings.NewReader(string(art.Data)))
		if err != nil {
			t.Fatalf("decode %q: %v", name, err)
		}
		if img.Bounds().Dx() != i+1 {
			t.Errorf("%s holds page %d, want page %d", name, img.Bounds().Dx(), i+1)
		}
	}

	var ppmArgs []string
	for _, c := range runner.calls {
		if c[0] == pdftoppmBin {
			ppmArgs = c
		}
	}
	if got := strings.Join(ppmArgs, " "); !strings.Contains(got, "-png") || !strings.Contains(got, "-r 150") {
		t.Errorf("pdftoppm args = %q, want -png and -r 150", got)
	}
}

func TestRasterizer_Rasterize_FreshTokenPerCall(t *testing.T) {
	t.Parallel()

	r, _ := newTestRasterizer(t, &fakeRunner{pages: "1"})

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		names, err := r.Rasterize(context.Background(), []byte(fakePDF), 0)
		if err != nil {
			t.Fatalf("Rasterize() error = %v", err)
		}
		token := strings.SplitN(names[0], "_", 2)[0]
		if seen[token] {
			t.Errorf("token %q reused", token)
		}
		seen[token] = true
	}
}

func TestRasterizer_Rasterize_DefaultDPI(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{pages: "1"}
	r, _ := newTestRasterizer(t, runner, WithTokenSource(fixedTokens("00c0ffee")))

	names, err := r.Rasterize(context.Background(), []byte(fakePDF), 0)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if names[0] != "00c0ffee_page_1.png" {
		t.Errorf("names[0] = %q, want 00c0ffee_page_1.png", names[0])
	}
	last := runner.calls[len(runner.calls)-1]
	if !strings.Contains(strings.Join(last, " "), "-r 150") {
		t.Errorf("pdftoppm args = %v, want default -r 150", last)
	}
}

// ---------------------------------------------------------------------------
// TestRasterizer_Rasterize_Errors - Distinct failure taxonomy
// ---------------------------------------------------------------------------

func TestRasterizer_Rasterize_Errors(t *testing.T) {
	t.Parallel()

	exitErr := errors.New("exit status 1")

	tests := []struct {
		name     string
		runner   *fakeRunner
		pdf      string
		dpi      int
		tokens   TokenSource
		check    func(t *testing.T, err error)
		category Category
	}{
		{
			name:   "dpi below range",
			runner: &fakeRunner{pages: "1"},
			dpi:    10,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrInvalidDPI) {
					t.Errorf("error = %v, want ErrInvalidDPI", err)
				}
			},
			category: CategoryInvalidInput,
		},
		{
			name:   "dpi above range",
			runner: &fakeRunner{pages: "1"},
			dpi:    1200,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrInvalidDPI) {
					t.Errorf("error = %v, want ErrInvalidDPI", err)
				}
			},
			category: CategoryInvalidInput,
		},
		{
			name:   "empty document",
			runner: &fakeRunner{pages: "1"},
			pdf:    "-",
			check: func(t *testing.T, err error) {
				var target *InvalidDocumentError
				if !errors.As(err, &target) {
					t.Errorf("error = %v, want InvalidDocumentError", err)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "pdfinfo missing",
			runner: &fakeRunner{infoErr: exec.ErrNotFound},
			check: func(t *testing.T, err error) {
				var target *BackendUnavailableError
				if !errors.As(err, &target) || target.Backend != pdfinfoBin {
					t.Errorf("error = %v, want BackendUnavailableError for pdfinfo", err)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "pdftoppm missing",
			runner: &fakeRunner{pages: "2", ppmErr: &exec.Error{Name: pdftoppmBin, Err: exec.ErrNotFound}},
			check: func(t *testing.T, err error) {
				var target *BackendUnavailableError
				if !errors.As(err, &target) || target.Backend != pdftoppmBin {
					t.Errorf("error = %v, want BackendUnavailableError for pdftoppm", err)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "pdfinfo failure is corrupt",
			runner: &fakeRunner{infoErr: exitErr, infoStderr: "Syntax Error: Couldn't find trailer dictionary"},
			check: func(t *testing.T, err error) {
				var target *CorruptDocumentError
				if !errors.As(err, &target) {
					t.Errorf("error = %v, want CorruptDocumentError", err)
				}
				if !strings.Contains(err.Error(), "trailer dictionary") {
					t.Errorf("error %q lost stderr detail", err)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "missing page count is corrupt",
			runner: &fakeRunner{},
			check: func(t *testing.T, err error) {
				var target *CorruptDocumentError
				if !errors.As(err, &target) {
					t.Errorf("error = %v, want CorruptDocumentError", err)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "zero page count is corrupt",
			runner: &fakeRunner{pages: "0"},
			check: func(t *testing.T, err error) {
				var target *CorruptDocumentError
				if !errors.As(err, &target) {
					t.Errorf("error = %v, want CorruptDocumentError", err)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "syntax error while rendering is invalid document",
			runner: &fakeRunner{pages: "1", ppmErr: exitErr, ppmStderr: "Syntax Error (1234): Illegal character"},
			check: func(t *testing.T, err error) {
				var target *InvalidDocumentError
				if !errors.As(err, &target) {
					t.Errorf("error = %v, want InvalidDocumentError", err)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "other render failure keeps page",
			runner: &fakeRunner{pages: "3", ppmErr: exitErr, ppmStderr: "I/O Error: out of memory", failPage: 2},
			check: func(t *testing.T, err error) {
				var target *RasterizationError
				if !errors.As(err, &target) || target.Page != 2 {
					t.Errorf("error = %v, want RasterizationError on page 2", err)
				}
				if !errors.Is(err, exitErr) {
					t.Errorf("error = %v, want cause %v", err, exitErr)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "missing output image",
			runner: &fakeRunner{pages: "1", skipWrite: true},
			check: func(t *testing.T, err error) {
				var target *RasterizationError
				if !errors.As(err, &target) || target.Page != 1 {
					t.Errorf("error = %v, want RasterizationError on page 1", err)
				}
			},
			category: CategoryConversionFailed,
		},
		{
			name:   "token failure",
			runner: &fakeRunner{pages: "1"},
			tokens: failingTokens{},
			check: func(t *testing.T, err error) {
				var target *RasterizationError
				if !errors.As(err, &target) {
					t.Errorf("error = %v, want RasterizationError", err)
				}
			},
			category: CategoryConversionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var opts []RasterizerOption
			if tt.tokens != nil {
				opts = append(opts, WithTokenSource(tt.tokens))
			}
			r, _ := newTestRasterizer(t, tt.runner, opts...)

			pdf := []byte(fakePDF)
			if tt.pdf == "-" {
				pdf = nil
			}

			names, err := r.Rasterize(context.Background(), pdf, tt.dpi)
			if err == nil {
				t.Fatalf("expected error, got names %v", names)
			}
			tt.check(t, err)
			if c := Classify(err); c != tt.category {
				t.Errorf("Classify() = %v, want %v", c, tt.category)
			}
		})
	}
}

func TestRasterizer_Rasterize_PartialBatchKept(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{pages: "3", ppmErr: errors.New("exit status 99"), failPage: 3}
	r, store := newTestRasterizer(t, runner, WithTokenSource(fixedTokens("abad1dea")))

	if _, err := r.Rasterize(context.Background(), []byte(fakePDF), 72); err == nil {
		t.Fatal("expected error on page 3")
	}

	left, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(left) != 2 || left[0] != "abad1dea_page_1.png" || left[1] != "abad1dea_page_2.png" {
		t.Errorf("stored pages = %v, want pages 1 and 2 kept", left)
	}
}

func TestRasterizer_Rasterize_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{pages: "5", cancelAfter: 1, cancel: cancel}
	r, _ := newTestRasterizer(t, runner)

	_, err := r.Rasterize(ctx, []byte(fakePDF), 100)

	var target *RasterizationError
	if !errors.As(err, &target) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want RasterizationError wrapping context.Canceled", err)
	}
	if n := runner.ppmCalls(); n >= 5 {
		t.Errorf("pdftoppm ran %d times after cancellation, want fewer than 5", n)
	}
}

// ---------------------------------------------------------------------------
// TestValidateDPI - Resolution bounds
// ---------------------------------------------------------------------------

func TestValidateDPI(t *testing.T) {
	t.Parallel()

	for _, dpi := range []int{0, MinDPI, DefaultDPI, 300, MaxDPI} {
		if err := ValidateDPI(dpi); err != nil {
			t.Errorf("ValidateDPI(%d) = %v, want nil", dpi, err)
		}
	}
	for _, dpi := range []int{-1, 1, MinDPI - 1, MaxDPI + 1} {
		if err := ValidateDPI(dpi); !errors.Is(err, ErrInvalidDPI) {
			t.Errorf("ValidateDPI(%d) = %v, want ErrInvalidDPI", dpi, err)
		}
	}
}

// ---------------------------------------------------------------------------
// TestRandomTokenSource - Token shape
// ---------------------------------------------------------------------------

func TestRandomTokenSource(t *testing.T) {
	t.Parallel()

	ts := NewRandomTokenSource()
	for i := 0; i < 50; i++ {
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if !tokenPattern.MatchString(tok) {
			t.Fatalf("Token() = %q, want 8 lowercase hex chars", tok)
		}
	}
}

package docrender

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for library operations.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrBlobNotFound     = errors.New("blob not found")

	ErrEmptyTemplateName   = errors.New("template name cannot be empty")
	ErrEmptyTemplateSource = errors.New("template source cannot be empty")
	ErrEmptyOwner          = errors.New("owner id cannot be empty")
	ErrInvalidOwner        = errors.New("invalid owner id")
	ErrInvalidImageRequest = errors.New("exactly one of template id or url is required")
	ErrInvalidURL          = errors.New("invalid document url")
	ErrInvalidDPI          = errors.New("invalid dpi")
	ErrInvalidBatchToken   = errors.New("invalid batch token")
	ErrInvalidPageNumber   = errors.New("invalid page number")

	ErrBlobUpload   = errors.New("failed to store template source")
	ErrBlobDownload = errors.New("failed to load template source")

	// Page settings validation errors.
	ErrInvalidPageSize    = errors.New("invalid page size")
	ErrInvalidOrientation = errors.New("invalid orientation")
	ErrInvalidMargin      = errors.New("invalid margin")

	// Compositor errors, wrapped inside CompositionError.
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrPDFGeneration  = errors.New("PDF generation failed")
)

// TemplateSyntaxError reports a template that cannot be parsed.
type TemplateSyntaxError struct {
	Name string
	Line int // 0 when the parser did not report one
	Err  error
}

func (e *TemplateSyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("template syntax error in %s at line %d: %v", e.Name, e.Line, e.Err)
	}
	return fmt.Sprintf("template syntax error in %s: %v", e.Name, e.Err)
}

func (e *TemplateSyntaxError) Unwrap() error { return e.Err }

// TemplateRenderError reports a substitution failure while executing a template.
type TemplateRenderError struct {
	Name     string
	Location string // "name:line:col" when the engine reports one
	Err      error
}

func (e *TemplateRenderError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("template render error at %s: %v", e.Location, e.Err)
	}
	return fmt.Sprintf("template render error in %s: %v", e.Name, e.Err)
}

func (e *TemplateRenderError) Unwrap() error { return e.Err }

// CompositionError wraps any failure of the HTML to PDF step.
type CompositionError struct {
	Err error
}

func (e *CompositionError) Error() string { return "composing PDF: " + e.Err.Error() }

func (e *CompositionError) Unwrap() error { return e.Err }

// FetchError reports a failed remote download. Status is the upstream HTTP
// status when one was received, zero for network-level failures.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to download PDF: %d", e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to download PDF: %v", e.Err)
	}
	return "failed to download PDF"
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchTimeoutError reports that the download exceeded its time bound.
type FetchTimeoutError struct {
	URL string
	Err error
}

func (e *FetchTimeoutError) Error() string { return "timeout downloading PDF" }

func (e *FetchTimeoutError) Unwrap() error { return e.Err }

// InvalidDocumentError reports bytes that are not a usable PDF.
type InvalidDocumentError struct {
	Reason string
	Err    error
}

func (e *InvalidDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid PDF document: %s: %v", e.Reason, e.Err)
	}
	return "invalid PDF document: " + e.Reason
}

func (e *InvalidDocumentError) Unwrap() error { return e.Err }

// BackendUnavailableError reports a missing rasterization backend binary.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("rasterization backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// CorruptDocumentError reports a PDF whose structure or page count cannot be read.
type CorruptDocumentError struct {
	Detail string
	Err    error
}

func (e *CorruptDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt PDF document: %s: %v", e.Detail, e.Err)
	}
	return "corrupt PDF document: " + e.Detail
}

func (e *CorruptDocumentError) Unwrap() error { return e.Err }

// RasterizationError wraps any other page conversion failure.
type RasterizationError struct {
	Page int // 0 when the failure is not tied to a page
	Err  error
}

func (e *RasterizationError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("rasterizing page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("rasterizing PDF: %v", e.Err)
}

func (e *RasterizationError) Unwrap() error { return e.Err }

// Category is the caller-facing class of an error.
type Category int

const (
	CategoryInternal Category = iota
	CategoryNotFound
	CategoryInvalidInput
	CategoryUploadFailed
	CategoryConversionFailed
	CategoryTimeout
)

func (c Category) String() string {
	switch c {
	case CategoryNotFound:
		return "not_found"
	case CategoryInvalidInput:
		return "invalid_input"
	case CategoryUploadFailed:
		return "upload_failed"
	case CategoryConversionFailed:
		return "conversion_failed"
	case CategoryTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Classify maps an error chain to its caller-facing category.
// The original error keeps every detail; only the boundary uses the category.
func Classify(err error) Category {
	if err == nil {
		return CategoryInternal
	}

	var (
		syntaxErr  *TemplateSyntaxError
		renderErr  *TemplateRenderError
		fetchErr   *FetchError
		timeoutErr *FetchTimeoutError
		invalidErr *InvalidDocumentError
		backendErr *BackendUnavailableError
		corruptErr *CorruptDocumentError
		rasterErr  *RasterizationError
		composeErr *CompositionError
	)

	switch {
	case errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrArtifactNotFound),
		errors.Is(err, ErrBlobNotFound):
		return CategoryNotFound
	case errors.As(err, &timeoutErr):
		return CategoryTimeout
	case errors.Is(err, ErrDocumentTooLarge):
		return CategoryInvalidInput
	case errors.As(err, &fetchErr):
		if fetchErr.Status != 0 {
			return CategoryInvalidInput
		}
		return CategoryUploadFailed
	case errors.As(err, &syntaxErr),
		errors.As(err, &renderErr),
		errors.Is(err, ErrEmptyTemplateName),
		errors.Is(err, ErrEmptyTemplateSource),
		errors.Is(err, ErrEmptyOwner),
		errors.Is(err, ErrInvalidOwner),
		errors.Is(err, ErrInvalidImageRequest),
		errors.Is(err, ErrInvalidURL),
		errors.Is(err, ErrInvalidDPI),
		errors.Is(err, ErrInvalidPageSize),
		errors.Is(err, ErrInvalidOrientation),
		errors.Is(err, ErrInvalidMargin),
		errors.Is(err, ErrInvalidData):
		return CategoryInvalidInput
	case errors.Is(err, ErrBlobUpload):
		return CategoryUploadFailed
	case errors.As(err, &backendErr),
		errors.As(err, &corruptErr),
		errors.As(err, &rasterErr),
		errors.As(err, &composeErr):
		return CategoryConversionFailed
	case errors.As(err, &invalidErr):
		// Fetched bytes that fail validation are the caller's input;
		// a rasterizer-level syntax failure surfaces as a conversion failure.
		if invalidErr.Reason == reasonNotPDF {
			return CategoryInvalidInput
		}
		return CategoryConversionFailed
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	}

	return CategoryInternal
}

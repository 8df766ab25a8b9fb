package docrender

import (
	"fmt"
	"strings"
)

// Page size constants.
const (
	PageSizeLetter = "letter"
	PageSizeA4     = "a4"
	PageSizeLegal  = "legal"
)

// Orientation constants.
const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// Margin bounds in inches.
const (
	MinMargin     = 0.25
	MaxMargin     = 3.0
	DefaultMargin = 0.5
)

// PageSettings configures composed PDF page dimensions.
type PageSettings struct {
	Size        string  `json:"size" yaml:"size"`               // "letter", "a4", "legal"
	Orientation string  `json:"orientation" yaml:"orientation"` // "portrait", "landscape"
	Margin      float64 `json:"margin" yaml:"margin"`           // inches, applied to all sides
}

// DefaultPageSettings returns page settings with default values.
func DefaultPageSettings() *PageSettings {
	return &PageSettings{
		Size:        PageSizeLetter,
		Orientation: OrientationPortrait,
		Margin:      DefaultMargin,
	}
}

// Validate checks that page settings are valid.
// Returns nil if p is nil (nil means use defaults). Empty size, empty
// orientation and zero margin also mean defaults.
// Does not mutate - uses case-insensitive comparison.
func (p *PageSettings) Validate() error {
	if p == nil {
		return nil
	}

	if !isValidPageSize(p.Size) {
		return fmt.Errorf("%w: %q", ErrInvalidPageSize, p.Size)
	}

	if !isValidOrientation(p.Orientation) {
		return fmt.Errorf("%w: %q", ErrInvalidOrientation, p.Orientation)
	}

	if p.Margin != 0 && (p.Margin < MinMargin || p.Margin > MaxMargin) {
		return fmt.Errorf("%w: %.2f (must be between %.2f and %.2f)", ErrInvalidMargin, p.Margin, MinMargin, MaxMargin)
	}

	return nil
}

func isValidPageSize(size string) bool {
	switch strings.ToLower(size) {
	case "", PageSizeLetter, PageSizeA4, PageSizeLegal:
		return true
	}
	return false
}

func isValidOrientation(orientation string) bool {
	switch strings.ToLower(orientation) {
	case "", OrientationPortrait, OrientationLandscape:
		return true
	}
	return false
}

// pageDimension is a portrait paper size in inches.
type pageDimension struct {
	width  float64
	height float64
}

var pageDimensions = map[string]pageDimension{
	PageSizeLetter: {width: 8.5, height: 11.0},
	PageSizeA4:     {width: 8.27, height: 11.69},
	PageSizeLegal:  {width: 8.5, height: 14.0},
}

// resolvePageDimensions returns width, height and margin in inches.
// Nil settings and unknown sizes fall back to letter.
func resolvePageDimensions(p *PageSettings) (width, height, margin float64) {
	if p == nil {
		p = DefaultPageSettings()
	}

	dims, ok := pageDimensions[strings.ToLower(p.Size)]
	if !ok {
		dims = pageDimensions[PageSizeLetter]
	}

	width, height = dims.width, dims.height
	if strings.EqualFold(p.Orientation, OrientationLandscape) {
		width, height = height, width
	}

	margin = p.Margin
	if margin == 0 {
		margin = DefaultMargin
	}
	return width, height, margin
}

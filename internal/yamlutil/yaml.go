// Package yamlutil wraps YAML parsing to isolate the external dependency.
// Config files and render data payloads both go through it; JSON payloads
// parse too since JSON is a subset of YAML.
package yamlutil

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

// MaxInputSize limits YAML input to prevent memory exhaustion (default 4MB).
var MaxInputSize = 4 << 20

var (
	ErrNilData        = errors.New("yamlutil: nil or empty data")
	ErrNilDestination = errors.New("yamlutil: nil destination pointer")
	ErrInputTooLarge  = errors.New("yamlutil: input exceeds maximum size")
)

// MapSlice and MapItem are the ordered mapping types produced by UnmarshalOrdered.
type (
	MapSlice = yaml.MapSlice
	MapItem  = yaml.MapItem
)

func validateSize(data []byte) error {
	if len(data) == 0 {
		return ErrNilData
	}
	if len(data) > MaxInputSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	return nil
}

// UnmarshalStrict rejects unknown fields in the input.
func UnmarshalStrict(data []byte, v any) error {
	if err := validateSize(data); err != nil {
		return err
	}
	if v == nil {
		return ErrNilDestination
	}
	if err := yaml.UnmarshalWithOptions(data, v, yaml.Strict()); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// UnmarshalOrdered decodes an untyped document, keeping mapping key order.
// Mappings come back as MapSlice, sequences as []any.
func UnmarshalOrdered(data []byte) (any, error) {
	if err := validateSize(data); err != nil {
		return nil, err
	}
	var out any
	if err := yaml.UnmarshalWithOptions(data, &out, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	return out, nil
}

// Marshal encodes v as YAML.
func Marshal(v any) ([]byte, error) {
	result, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	return result, nil
}

// Package dateutil formats dates for templates using readable tokens
// (YYYY, MM, DD, ...) instead of Go reference layouts.
package dateutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDateFormat indicates an invalid date format string.
var ErrInvalidDateFormat = errors.New("invalid date format")

// ErrInvalidDate indicates a value that is not a recognized date.
var ErrInvalidDate = errors.New("invalid date")

// MaxFormatLength limits format string length.
const MaxFormatLength = 50

// tokens maps readable tokens to Go layout components,
// longest first for greedy matching.
var tokens = []struct {
	token string
	goFmt string
}{
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"M", "1"},
	{"D", "2"},
}

// Presets are named shortcuts, matched case-insensitively.
var Presets = map[string]string{
	"iso":      "YYYY-MM-DD",
	"european": "DD/MM/YYYY",
	"us":       "MM/DD/YYYY",
	"long":     "MMMM D, YYYY",
}

// inputLayouts are the date encodings accepted in template data.
var inputLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Layout converts a token format or preset name to a Go time layout.
// Text inside brackets is kept literally: "[Due] DD" gives "Due 02".
// Other non-token characters pass through unchanged.
func Layout(format string) (string, error) {
	if format == "" {
		return "", fmt.Errorf("%w: format cannot be empty", ErrInvalidDateFormat)
	}
	if len(format) > MaxFormatLength {
		return "", fmt.Errorf("%w: format exceeds %d characters", ErrInvalidDateFormat, MaxFormatLength)
	}
	if preset, ok := Presets[strings.ToLower(format)]; ok {
		format = preset
	}

	var sb strings.Builder
	sb.Grow(len(format) + 8)

	for i := 0; i < len(format); {
		if format[i] == '[' {
			end := strings.IndexByte(format[i+1:], ']')
			if end == -1 {
				return "", fmt.Errorf("%w: unclosed bracket at position %d", ErrInvalidDateFormat, i)
			}
			sb.WriteString(format[i+1 : i+1+end])
			i += end + 2
			continue
		}

		matched := false
		for _, t := range tokens {
			if strings.HasPrefix(format[i:], t.token) {
				sb.WriteString(t.goFmt)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			sb.WriteByte(format[i])
			i++
		}
	}
	return sb.String(), nil
}

// Parse reads a date in ISO 8601 form (date only or RFC 3339).
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DD or RFC 3339)", ErrInvalidDate, value)
}

// Format renders value, a string or time.Time, with a token format.
func Format(format string, value any) (string, error) {
	layout, err := Layout(format)
	if err != nil {
		return "", err
	}

	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	case string:
		if t, err = Parse(v); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidDate, value)
	}
	return t.Format(layout), nil
}

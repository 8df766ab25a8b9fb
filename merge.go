package docrender

import (
	"errors"
	"fmt"
	"html/template"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alnah/go-docrender/internal/dateutil"
)

// templateName names every merged template in error locations.
const templateName = "document"

var (
	// "template: document:12: unexpected EOF"
	parseLinePattern = regexp.MustCompile(`template: [^:]+:(\d+):`)
	// "template: document:3:14: executing ..."
	execLocationPattern = regexp.MustCompile(`template: ([^:]+:\d+:\d+):`)
)

// Merger substitutes structured data into an HTML template.
// Templates use html/template syntax; missing keys are errors, not "<no value>".
type Merger struct {
	funcs template.FuncMap
}

// KeyValue is one mapping entry as yielded by the items helper.
type KeyValue struct {
	Key   string
	Value any
}

var defaultMerger = NewMerger()

// Merge substitutes data into src with the default helper functions.
func Merge(src string, data *Map) (string, error) {
	return defaultMerger.Merge(src, data)
}

// NewMerger returns a Merger with the default helper functions.
func NewMerger() *Merger {
	return &Merger{funcs: defaultFuncs()}
}

// Merge parses src and executes it against data.
// Identical inputs always yield identical output.
func (m *Merger) Merge(src string, data *Map) (string, error) {
	order := keyOrder{}
	native := toNative(data, order)

	funcs := maps.Clone(m.funcs)
	funcs["items"] = itemsFunc(order)
	tmpl, err := parse(src, funcs)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, native); err != nil {
		return "", classifyExecError(err)
	}
	return sb.String(), nil
}

// Parse compiles src without executing it, so callers can validate a
// template at registration time.
func (m *Merger) Parse(src string) (*template.Template, error) {
	return parse(src, m.funcs)
}

func parse(src string, funcs template.FuncMap) (*template.Template, error) {
	tmpl, err := template.New(templateName).
		Option("missingkey=error").
		Funcs(funcs).
		Parse(src)
	if err != nil {
		return nil, &TemplateSyntaxError{Name: templateName, Line: parseLine(err), Err: err}
	}
	return tmpl, nil
}

// classifyExecError separates escaping failures, which html/template only
// detects on first execution but which are structural, from data failures.
func classifyExecError(err error) error {
	var escErr *template.Error
	if errors.As(err, &escErr) && escErr.ErrorCode != template.OK {
		return &TemplateSyntaxError{Name: templateName, Line: escErr.Line, Err: err}
	}
	return &TemplateRenderError{Name: templateName, Location: execLocation(err), Err: err}
}

func parseLine(err error) int {
	m := parseLinePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return n
}

func execLocation(err error) string {
	m := execLocationPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return ""
	}
	return m[1]
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"title":   titleCase,
		"join":    joinValues,
		"date":    dateutil.Format,
		"float":   toFloat,
		"items":   itemsFunc(nil),
		"safe":    safeHTML,
		"safeCSS": safeCSS,
		"safeURL": safeURL,
		"default": func(fallback, v any) any {
			if v == nil {
				return fallback
			}
			if s, ok := v.(string); ok && s == "" {
				return fallback
			}
			return v
		},
	}
}

// titleCase upper-cases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func joinValues(sep string, items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprint(item)
	}
	return strings.Join(parts, sep)
}

// itemsFunc returns mapping entries in the order the data was supplied.
// Maps without recorded order fall back to sorted keys, as range does.
func itemsFunc(order keyOrder) func(any) ([]KeyValue, error) {
	return func(v any) ([]KeyValue, error) {
		switch x := v.(type) {
		case nil:
			return nil, nil
		case map[string]any:
			keys, ok := order.keys(x)
			if !ok || len(keys) != len(x) {
				keys = slices.Sorted(maps.Keys(x))
			}
			out := make([]KeyValue, len(keys))
			for i, k := range keys {
				out[i] = KeyValue{Key: k, Value: x[k]}
			}
			return out, nil
		default:
			return nil, fmt.Errorf("items: expected a mapping, got %T", v)
		}
	}
}

// toFloat lets templates compare numbers regardless of how they were written.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("float: %q is not a number", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("float: unsupported value of type %T", v)
	}
}

// The safe helpers mark data as trusted markup for owner-authored templates.

func safeHTML(v any) template.HTML { return template.HTML(rawString(v)) } // #nosec G203
func safeCSS(v any) template.CSS   { return template.CSS(rawString(v)) }  // #nosec G203
func safeURL(v any) template.URL   { return template.URL(rawString(v)) }  // #nosec G203

func rawString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

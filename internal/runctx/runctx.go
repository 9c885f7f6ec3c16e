// Package runctx implements the per-run context map: a JSON-shaped value
// tree written by the workflow engine as actions complete and read by gating
// expressions, approval conditions, and parameter templates.
//
// Values are restricted to the JSON domain (nil, bool, numbers, strings,
// []any, map[string]any) so lookups are plain type switches — no reflection.
// A Map is owned by exactly one run and is not safe for concurrent use;
// runs are strictly sequential so the engine never needs a lock here.
package runctx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Map is a dynamic key→value mapping with dotted-path access.
type Map struct {
	root map[string]any
}

// New returns an empty Map.
func New() *Map {
	return &Map{root: map[string]any{}}
}

// FromMap returns a Map seeded with the given values. The input is
// normalized into the JSON value domain; the original map is not retained.
func FromMap(seed map[string]any) *Map {
	m := New()
	for k, v := range seed {
		m.root[k] = Normalize(v)
	}
	return m
}

// Get resolves a dotted path ("quote.price") against the tree. The second
// return value reports whether the full path exists.
func (m *Map) Get(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = m.root
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := node[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Set writes a value at a dotted path, creating intermediate maps as needed.
// Existing non-map values along the path are replaced by maps.
func (m *Map) Set(path string, v any) {
	if path == "" {
		return
	}
	parts := strings.Split(path, ".")
	node := m.root
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = Normalize(v)
}

// Snapshot returns a deep copy of the underlying tree, suitable for
// inclusion in run results and trace events after the run has finished.
func (m *Map) Snapshot() map[string]any {
	copied := deepCopy(m.root)
	return copied.(map[string]any)
}

// Len returns the number of top-level keys.
func (m *Map) Len() int {
	return len(m.root)
}

// templateRef matches a single {{ dotted.path }} reference inside a string.
var templateRef = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Render replaces every {{ path }} reference in s with the stringified value
// at that path, or the empty string when the path is missing.
func (m *Map) Render(s string) string {
	return templateRef.ReplaceAllStringFunc(s, func(match string) string {
		path := strings.TrimSpace(templateRef.FindStringSubmatch(match)[1])
		v, ok := m.Get(path)
		if !ok {
			return ""
		}
		return Stringify(v)
	})
}

// RenderValue walks v recursively: strings are template-rendered, arrays and
// maps are transformed element by element, and non-string scalars pass
// through unchanged. The input is not mutated.
func (m *Map) RenderValue(v any) any {
	switch t := Normalize(v).(type) {
	case string:
		return m.Render(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = m.RenderValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = m.RenderValue(e)
		}
		return out
	default:
		return t
	}
}

// RenderParams renders a parameter object, preserving nil as an empty map so
// tools always receive a non-nil params value.
func (m *Map) RenderParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return m.RenderValue(params).(map[string]any)
}

// Normalize coerces a decoded JSON/YAML value into the canonical in-memory
// domain: nil, bool, int64, float64, string, []any, map[string]any. Integer
// types collapse to int64, float32 widens to float64, json.Number resolves
// to int64 when exact and float64 otherwise.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int64, float64:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	default:
		// Structured values from tool results: round-trip through JSON so
		// the tree stays in the plain value domain.
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Sprintf("%v", v)
		}
		return generic
	}
}

// Stringify renders a context value for template substitution. Scalars use
// their natural text form (integers without a decimal point); composites
// serialize as compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// Whole floats print as integers: a price of 100.0 renders as "100".
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}

// deepCopy clones a normalized value tree.
func deepCopy(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	default:
		return t
	}
}

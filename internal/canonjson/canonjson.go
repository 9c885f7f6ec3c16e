// Package canonjson produces a canonical JSON byte form and SHA-256 digests
// for arbitrary JSON-shaped values.
//
// Two logically equal documents — same structure, any key order, any
// insignificant whitespace — canonicalize to identical bytes and therefore
// identical digests. This is the foundation for content-addressed plan and
// policy artifacts: a plan hash is stable under reordering of object keys
// and under re-serialization by other tooling.
//
// Canonical form rules:
//   - object keys are emitted in lexicographic (byte-wise) order
//   - no insignificant whitespace anywhere
//   - arrays preserve element order
//   - numbers use their shortest round-trippable decimal form
//   - strings use standard JSON escaping without HTML escaping
//   - null / true / false are emitted as literals
package canonjson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

// DigestPrefix is prepended to every hex digest this package produces.
const DigestPrefix = "sha256:"

// Canonicalize renders v in canonical JSON form. v may be any value that
// encoding/json can marshal: maps, slices, scalars, or structs. Structs and
// other non-basic types are normalized through a JSON round-trip first so
// that field tags and omitempty semantics apply before canonicalization.
func Canonicalize(v any) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, norm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Digest canonicalizes v and returns "sha256:" followed by the lowercase hex
// SHA-256 of the canonical bytes.
func Digest(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(b), nil
}

// DigestBytes hashes raw bytes without canonicalization. Used for artifacts,
// where the digest covers the bytes actually written to disk.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// normalize reduces v to the JSON value domain handled by writeValue:
// nil, bool, string, float64, int64, []any, map[string]any. Values outside
// that domain (structs, typed maps, named types) are round-tripped through
// encoding/json.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, float64, int, int32, int64, uint, uint32, uint64, json.Number:
		return t, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("canonjson: marshaling %T: %w", v, err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("canonjson: round-tripping %T: %w", v, err)
		}
		return generic, nil
	}
}

// writeValue appends the canonical form of v to buf.
func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeString(buf, t)
	case float64:
		if err := writeFloat(buf, t); err != nil {
			return err
		}
	case int:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(t, 10))
	case json.Number:
		// Preserve integer precision; everything else goes through the
		// shortest-float path so "1.50" and "1.5" canonicalize identically.
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			buf.WriteString(strconv.FormatInt(i, 10))
			return nil
		}
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("canonjson: invalid number %q: %w", t.String(), err)
		}
		return writeFloat(buf, f)
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeValue(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonjson: unsupported value type %T", v)
	}
	return nil
}

// writeFloat emits the shortest decimal form that round-trips to the same
// float64, matching encoding/json's number formatting (plain notation for
// mid-range magnitudes, exponent notation outside [1e-6, 1e21)).
func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonjson: unsupported float value %v", f)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, f, format, -1, 64)
	if format == 'e' {
		// Trim a leading zero in a two-digit exponent: 1e-09 -> 1e-9.
		if n := len(b); n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	buf.Write(b)
	return nil
}

const hexDigits = "0123456789abcdef"

// writeString emits s as a JSON string using standard escaping only:
// quote, backslash, and control characters. HTML-significant characters
// (<, >, &) pass through unescaped so the canonical form is independent of
// Go's default HTML-safe encoding.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		b := s[i]
		if b < utf8.RuneSelf {
			switch {
			case b == '"':
				buf.WriteString(`\"`)
			case b == '\\':
				buf.WriteString(`\\`)
			case b == '\n':
				buf.WriteString(`\n`)
			case b == '\r':
				buf.WriteString(`\r`)
			case b == '\t':
				buf.WriteString(`\t`)
			case b < 0x20:
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[b>>4])
				buf.WriteByte(hexDigits[b&0xf])
			default:
				buf.WriteByte(b)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			// Invalid UTF-8 byte: emit the replacement character so the
			// canonical form is always valid UTF-8.
			buf.WriteString(`�`)
			i++
			continue
		}
		buf.WriteString(s[i : i+size])
		i += size
	}
	buf.WriteByte('"')
}

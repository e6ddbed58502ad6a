// Package metadata extracts structured metadata from knowledge files:
// YAML frontmatter fields and inline hashtags, with the false-positive
// filters the rest of the system relies on (hex color codes, markdown
// heading markers, code-fenced text).
package metadata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the typed scalar stored in a Value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

// Value is a tagged union for metadata field values. Fields are typed
// once at extraction time; the filter builder later matches on Kind to
// decide how a value participates in a predicate.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

// String builds a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number builds a numeric Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Boolean builds a boolean Value.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Native returns the value as the corresponding Go type.
func (v Value) Native() any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return v.Str
	}
}

// Render returns the value formatted for display.
func (v Value) Render() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// MarshalJSON encodes the value as its native JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(v.Native())
	if err != nil {
		return nil, fmt.Errorf("marshal metadata value: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes a native JSON scalar back into a tagged Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal metadata value: %w", err)
	}
	*v = FromNative(raw)
	return nil
}

// FromNative converts a decoded JSON/YAML scalar into a Value.
// Unknown types fall back to their string form.
func FromNative(raw any) Value {
	switch t := raw.(type) {
	case bool:
		return Boolean(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case float64:
		return Number(t)
	case string:
		return coerceString(t)
	case nil:
		return String("")
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// coerceString promotes strings that fully parse as numbers or booleans.
func coerceString(s string) Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return String(s)
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Number(n)
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return Boolean(true)
	case "false":
		return Boolean(false)
	}
	return String(s)
}

// Document is the metadata extracted from one file. It is recomputed in
// full on every reindex of the file and denormalized onto each of the
// file's chunks.
type Document struct {
	// Tags holds deduplicated tags in their canonical spelling, sorted,
	// each with the # prefix.
	Tags []string `json:"tags"`

	// Fields maps field names (original casing from the header) to
	// typed values.
	Fields map[string]Value `json:"fields"`
}

// NewDocument returns an empty, non-nil Document.
func NewDocument() Document {
	return Document{Fields: make(map[string]Value)}
}

// Field looks up a field case-insensitively.
func (d Document) Field(name string) (Value, bool) {
	if v, ok := d.Fields[name]; ok {
		return v, true
	}
	for k, v := range d.Fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return Value{}, false
}

// HasTag reports whether the document carries the tag, compared
// case-insensitively. The # prefix on the argument is optional.
func (d Document) HasTag(tag string) bool {
	want := strings.ToLower(strings.TrimPrefix(tag, "#"))
	for _, t := range d.Tags {
		if strings.ToLower(strings.TrimPrefix(t, "#")) == want {
			return true
		}
	}
	return false
}

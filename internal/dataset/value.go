package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the scalar type held by a Value.
type Kind int

const (
	Null Kind = iota
	Number
	Text
)

// Value is a single typed cell. For numbers read from text, Str keeps the
// original cell so a column later typed as text loses nothing.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// NullValue returns a missing cell.
func NullValue() Value { return Value{} }

// NumberValue wraps a float.
func NumberValue(f float64) Value { return Value{Kind: Number, Num: f} }

// ParsedNumber wraps a float parsed from raw.
func ParsedNumber(f float64, raw string) Value { return Value{Kind: Number, Num: f, Str: raw} }

// TextValue wraps a string.
func TextValue(s string) Value { return Value{Kind: Text, Str: s} }

// IsNull reports whether the cell is missing. NaN numbers count as missing.
func (v Value) IsNull() bool {
	return v.Kind == Null || (v.Kind == Number && math.IsNaN(v.Num))
}

// String renders the value the way it would appear in a CSV cell.
func (v Value) String() string {
	switch v.Kind {
	case Number:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case Text:
		return v.Str
	default:
		return ""
	}
}

// key returns a type-tagged encoding used for exact duplicate detection.
func (v Value) key() string {
	switch {
	case v.IsNull():
		return "n:"
	case v.Kind == Number:
		return "f:" + strconv.FormatFloat(v.Num, 'g', -1, 64)
	default:
		return "s:" + strconv.Quote(v.Str)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.IsNull():
		return []byte("null"), nil
	case v.Kind == Number:
		if math.IsInf(v.Num, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.Num, 'g', -1, 64)), nil
	default:
		return json.Marshal(v.Str)
	}
}

// MarshalYAML emits the underlying scalar.
func (v Value) MarshalYAML() (any, error) {
	switch {
	case v.IsNull():
		return nil, nil
	case v.Kind == Number:
		return v.Num, nil
	default:
		return v.Str, nil
	}
}

// missingTokens are cell contents treated as missing when reading delimited text.
var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"-nan": {},
	"null": {},
	"none": {},
	"#n/a": {},
	"<na>": {},
}

// IsMissingToken reports whether a raw text cell denotes a missing value.
func IsMissingToken(s string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

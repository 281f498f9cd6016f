package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind tags the content of a Value.
type Kind uint8

const (
	Null Kind = iota
	Number
	Text
)

// Value is a single cell of a relation: null, a number or a string.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// NullValue returns the missing value.
func NullValue() Value { return Value{} }

// Num wraps a number. NaN and infinities are stored as null.
func Num(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: Number, num: f}
}

// Str wraps a string. The empty string is stored as null.
func Str(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{kind: Text, str: s}
}

// Parse converts a raw cell as read from a sheet or CSV file. Blank cells and
// the usual NA spellings become null, numeric text becomes a number.
func Parse(raw string) Value {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "na", "nan", "n/a", "null", "none":
		return Value{}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Num(f)
	}
	return Str(s)
}

// FromAny converts Go values produced by drivers and test fixtures.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case Value:
		return x
	case float64:
		return Num(x)
	case float32:
		return Num(float64(x))
	case int:
		return Num(float64(x))
	case int8:
		return Num(float64(x))
	case int16:
		return Num(float64(x))
	case int32:
		return Num(float64(x))
	case int64:
		return Num(float64(x))
	case uint8:
		return Num(float64(x))
	case uint16:
		return Num(float64(x))
	case uint32:
		return Num(float64(x))
	case uint64:
		return Num(float64(x))
	case bool:
		if x {
			return Num(1)
		}
		return Num(0)
	case string:
		return Parse(x)
	case []byte:
		return Parse(string(x))
	default:
		return Parse(toString(x))
	}
}

func toString(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.Trim(string(b), `"`)
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }
func (v Value) IsNumber() bool { return v.kind == Number }

// Float returns the numeric content. Numeric text is not coerced.
func (v Value) Float() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	return v.num, true
}

// String renders the value as a label. Integral numbers drop the fraction so
// that 857781 read from a sheet and "857781" read from CSV share a key.
func (v Value) String() string {
	switch v.kind {
	case Number:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Text:
		return v.str
	default:
		return ""
	}
}

// Truthy reports whether a flag cell is set: non-zero numbers and the words
// true/yes/y.
func (v Value) Truthy() bool {
	switch v.kind {
	case Number:
		return v.num != 0
	case Text:
		switch strings.ToLower(v.str) {
		case "true", "yes", "y", "1":
			return true
		}
	}
	return false
}

// Equal compares kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Number:
		return v.num == o.num
	case Text:
		return v.str == o.str
	}
	return true
}

// Less orders values: nulls first, then numbers ascending, then text.
func Less(a, b Value) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	switch a.kind {
	case Number:
		return a.num < b.num
	case Text:
		return a.str < b.str
	}
	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Number:
		return json.Marshal(v.num)
	case Text:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

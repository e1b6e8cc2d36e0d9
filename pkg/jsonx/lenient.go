package jsonx

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number accepts a JSON number, a numeric string ("85", "85%") or null.
// Valid is false when the field was null, missing or unparseable.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*n = Number{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number{Value: f, Valid: true}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = Number{Value: f, Valid: true}
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Int truncates toward zero; invalid numbers become 0.
func (n Number) Int() int {
	if !n.Valid || math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		return 0
	}
	return int(n.Value)
}

// IntPtr is Int for valid numbers and nil otherwise.
func (n Number) IntPtr() *int {
	if !n.Valid {
		return nil
	}
	v := n.Int()
	return &v
}

// Bool accepts a JSON bool, "true"/"false"/"yes"/"no" strings, 0/1 or null.
type Bool bool

func (v *Bool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		*v = false
		return nil
	}
	switch x := raw.(type) {
	case bool:
		*v = Bool(x)
	case float64:
		*v = x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "1":
			*v = true
		default:
			*v = false
		}
	default:
		*v = false
	}
	return nil
}

// String accepts a JSON string, or an array whose string, number and bool
// elements are joined with a space. Anything else decodes to "".
type String string

func (v *String) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(bytes.TrimSpace(b), &raw); err != nil {
		*v = ""
		return nil
	}
	switch x := raw.(type) {
	case string:
		*v = String(x)
	case []interface{}:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := scalarText(item); s != "" {
				parts = append(parts, s)
			}
		}
		*v = String(strings.Join(parts, " "))
	default:
		*v = String(scalarText(x))
	}
	return nil
}

func scalarText(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

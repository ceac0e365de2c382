package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the content of a single cell. It always holds exactly one of
// string, float64 or bool. The empty string is an empty cell.
type Value = any

// Normalize converts v into one of the three cell kinds. Integer and float
// kinds become float64 and nil becomes the empty string.
func Normalize(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %v is not a finite number", ErrInvalidValue, x)
		}
		return x, nil
	case float32:
		return Normalize(float64(x))
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
	}
}

// MustNormalize is like Normalize but panics on unsupported input.
func MustNormalize(v any) Value {
	n, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return n
}

// ParseValue interprets text input: "true"/"false" become booleans, numeric
// strings become numbers, anything else stays text.
func ParseValue(s string) Value {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

// FormatValue renders a value for display. Whole numbers print without a
// fractional part.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Equal reports whether two cell values are the same.
func Equal(a, b Value) bool {
	if a == nil {
		a = ""
	}
	if b == nil {
		b = ""
	}
	return a == b
}

// isEmpty reports whether v is the empty cell.
func isEmpty(v Value) bool {
	s, ok := v.(string)
	return v == nil || (ok && s == "")
}

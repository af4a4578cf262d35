package expression

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

var errNotNumeric = errors.New("$subtract requires numbers or dates")

// Truthy follows document-database semantics: false, null and zero are false,
// everything else (including empty strings and arrays) is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		if f, ok := ToFloat(v); ok {
			return f != 0
		}

		return true
	}
}

// ToFloat converts any numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}

		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)

		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

// Equal compares two values, treating all numeric types alike.
func Equal(a, b any) bool {
	if id, ok := a.(ObjectID); ok {
		a = string(id)
	}

	if id, ok := b.(ObjectID); ok {
		b = string(id)
	}

	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)

		return ok && fa == fb
	}

	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)

	if aIsTime || bIsTime {
		ta, okA := toTime(a)
		tb, okB := toTime(b)

		return okA && okB && ta.Equal(tb)
	}

	return reflect.DeepEqual(a, b)
}

// Compare orders two values of a comparable kind. ok is false when the values
// cannot be ordered against each other.
func Compare(a, b any) (int, bool) {
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		if !ok {
			return 0, false
		}

		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}

	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)

	if aIsTime || bIsTime {
		ta, okA := toTime(a)
		tb, okB := toTime(b)

		if !okA || !okB {
			return 0, false
		}

		return ta.Compare(tb), true
	}

	sa, okA := a.(string)
	sb, okB := b.(string)

	if okA && okB {
		return strings.Compare(sa, sb), true
	}

	return 0, false
}

// TypeName returns the BSON-style type name of a value.
func TypeName(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case int, int8, int16, int32, uint8, uint16:
		return "int"
	case int64, uint, uint32, uint64:
		return "long"
	case float32, float64, json.Number:
		return "double"
	case time.Time, *time.Time:
		return "date"
	case ObjectID:
		return "objectId"
	case []any, []map[string]any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func subtract(a, b any) (any, error) {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := toTime(b); ok {
			return ta.Sub(tb).Milliseconds(), nil
		}

		if ms, ok := ToFloat(b); ok {
			return ta.Add(-time.Duration(ms * float64(time.Millisecond))), nil
		}

		return nil, errNotNumeric
	}

	fa, okA := ToFloat(a)
	fb, okB := ToFloat(b)

	if !okA || !okB {
		return nil, errNotNumeric
	}

	return fa - fb, nil
}

// ObjectID is a validated record identifier.
type ObjectID string

// ToObjectID validates v as a 24-hex-digit object id or a UUID.
func ToObjectID(v any) (ObjectID, error) {
	switch t := v.(type) {
	case ObjectID:
		return t, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if len(s) == 24 {
			if _, err := hex.DecodeString(s); err == nil {
				return ObjectID(s), nil
			}
		}

		if parsed, err := uuid.Parse(s); err == nil {
			return ObjectID(parsed.String()), nil
		}

		return "", fmt.Errorf("%q is not a valid identifier", t)
	default:
		return "", fmt.Errorf("cannot convert %s to an identifier", TypeName(v))
	}
}

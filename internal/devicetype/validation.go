package devicetype

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Validate checks params against schema.
//
// Parameters are checked in declaration order and the first failure is
// returned. Unrecognised parameters are ignored.
//
// Parameters:
//   - params: Decoded command parameters (may be nil)
//   - schema: The command's parameter schema
//
// Returns:
//   - error: nil, or a *ValidationError naming the failing parameter
func Validate(params map[string]any, schema Schema) error {
	for _, p := range schema {
		value, present := params[p.Name]
		if !present {
			if p.Required {
				return invalid(p.Name, "Missing required parameter: %s", p.Name)
			}
			continue
		}

		switch p.Type {
		case ParamNumber:
			n, ok := AsNumber(value)
			if !ok {
				return invalid(p.Name, "Parameter %s must be a number", p.Name)
			}
			if p.Min != nil && n < *p.Min {
				return invalid(p.Name, "Parameter %s must be at least %s", p.Name, FormatNumber(*p.Min))
			}
			if p.Max != nil && n > *p.Max {
				return invalid(p.Name, "Parameter %s must be at most %s", p.Name, FormatNumber(*p.Max))
			}

		case ParamString:
			s, ok := value.(string)
			if !ok {
				return invalid(p.Name, "Parameter %s must be a string", p.Name)
			}
			if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
				return invalid(p.Name, "Parameter %s must be one of: %s", p.Name, strings.Join(p.Enum, ", "))
			}
		}
	}
	return nil
}

func invalid(param, format string, args ...any) *ValidationError {
	return &ValidationError{Param: param, Message: fmt.Sprintf(format, args...)}
}

// AsNumber reports whether v is a JSON-compatible number and returns it as
// float64. Booleans, strings and nil are not numbers.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// FormatNumber renders n in its shortest exact form: 42, 20.5, -3.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

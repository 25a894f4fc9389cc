package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ToughForge/EspoMCP/internal/catalog"
)

// Type is a JSON Schema primitive type.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
)

// DatePattern is enforced on date parameters.
const DatePattern = `^\d{4}-\d{2}-\d{2}$`

var dateRe = regexp.MustCompile(DatePattern)

// Param is one typed parameter. The same value renders the JSON Schema
// property and coerces incoming arguments, so the two cannot drift.
type Param struct {
	Name        string
	Type        Type
	Items       Type
	Description string
	Enum        []string
	Min         *float64
	Max         *float64
	MaxLength   *int
	Pattern     string
	Default     any

	// Clamp pulls out-of-range numbers into [Min, Max] instead of
	// rejecting them.
	Clamp bool

	// Field is the catalog field behind the parameter, empty for
	// control parameters. Kind is its kind.
	Field string
	Kind  catalog.Kind
}

// Property is the JSON Schema of one parameter.
type Property struct {
	Type        Type      `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	MaxLength   *int      `json:"maxLength,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// InputSchema is the object schema of a whole operation.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property renders the parameter's JSON Schema.
func (p Param) Property() Property {
	prop := Property{
		Type:        p.Type,
		Description: p.Description,
		Minimum:     p.Min,
		Maximum:     p.Max,
		MaxLength:   p.MaxLength,
		Pattern:     p.Pattern,
		Default:     p.Default,
	}
	if p.Type == TypeArray {
		items := p.Items
		if items == "" {
			items = TypeString
		}
		prop.Items = &Property{Type: items, Enum: p.Enum}
	} else {
		prop.Enum = p.Enum
	}
	return prop
}

// Coerce converts an argument to the parameter's type and validates
// it. Numeric strings become numbers, "true"/"false" become booleans
// and a scalar given to an array parameter becomes a one-element list.
func (p Param) Coerce(v any) (any, error) {
	if p.Type != TypeArray {
		return p.CoerceScalar(v)
	}

	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case []string:
		items = make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
	default:
		items = []any{x}
	}

	elem := Param{Name: p.Name, Type: p.Items, Enum: p.Enum}
	if elem.Type == "" {
		elem.Type = TypeString
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		c, err := elem.CoerceScalar(item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// toInt64 converts an integral float, rejecting or clamping values
// outside the int64 range.
func (p Param) toInt64(f float64) (int64, error) {
	switch {
	case f < math.MinInt64:
		if p.Clamp {
			return math.MinInt64, nil
		}
		return 0, fmt.Errorf("must be at least %d, got %v", int64(math.MinInt64), f)
	case f >= math.MaxInt64:
		if p.Clamp {
			return math.MaxInt64, nil
		}
		return 0, fmt.Errorf("must be at most %d, got %v", int64(math.MaxInt64), f)
	}
	return int64(f), nil
}

// CoerceScalar coerces a single value, ignoring the array wrapping of
// array parameters.
func (p Param) CoerceScalar(v any) (any, error) {
	switch p.Type {
	case TypeInteger:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("must be an integer, got %v", v)
		}
		f, err = p.checkRange(f)
		if err != nil {
			return nil, err
		}
		return p.toInt64(f)

	case TypeNumber:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return p.checkRange(f)

	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, fmt.Errorf("must be a boolean, got %v", v)

	default:
		s, err := toString(v)
		if err != nil {
			return nil, err
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return nil, fmt.Errorf("must be one of [%s], got %q", strings.Join(p.Enum, ", "), s)
		}
		if p.MaxLength != nil && utf8.RuneCountInString(s) > *p.MaxLength {
			return nil, fmt.Errorf("must be at most %d characters", *p.MaxLength)
		}
		if p.Pattern == DatePattern && !dateRe.MatchString(s) {
			return nil, fmt.Errorf("must be a date in YYYY-MM-DD format, got %q", s)
		}
		return s, nil
	}
}

func (p Param) checkRange(f float64) (float64, error) {
	if p.Min != nil && f < *p.Min {
		if p.Clamp {
			return *p.Min, nil
		}
		return 0, fmt.Errorf("must be >= %v", *p.Min)
	}
	if p.Max != nil && f > *p.Max {
		if p.Clamp {
			return *p.Max, nil
		}
		return 0, fmt.Errorf("must be <= %v", *p.Max)
	}
	return f, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("must be a number, got %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("must be a number, got %T", v)
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	case json.Number:
		return x.String(), nil
	}
	return "", fmt.Errorf("must be a string, got %T", v)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }

package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/uniseg"

	"github.com/dshills/brushwork/internal/plugin/fault"
)

// FieldType is the type of a settings schema leaf.
type FieldType string

// Schema leaf types.
const (
	TypeNumber  FieldType = "number"
	TypeString  FieldType = "string"
	TypeBoolean FieldType = "boolean"
	TypeColor   FieldType = "color"
	TypeSelect  FieldType = "select"
)

// Field describes one declared setting.
type Field struct {
	Type        FieldType `json:"type" yaml:"type"`
	Default     any       `json:"default" yaml:"default"`
	Label       string    `json:"label,omitempty" yaml:"label,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`

	// Number bounds.
	Min  *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max  *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Step *float64 `json:"step,omitempty" yaml:"step,omitempty"`

	// MaxLength counts user-perceived characters, not bytes.
	MaxLength *int `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`

	// Options lists the allowed values of a select field.
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Schema maps setting keys to their declarations.
type Schema map[string]Field

// Keys returns the declared keys, sorted.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Defaults returns the normalized default of every field.
func (s Schema) Defaults() map[string]any {
	out := make(map[string]any, len(s))
	for k, f := range s {
		if v, err := f.Coerce(f.Default); err == nil {
			out[k] = v
		}
	}
	return out
}

// Validate checks that every field is well formed and that its default
// satisfies its own constraints.
func (s Schema) Validate() error {
	for _, key := range s.Keys() {
		if err := s[key].validate(); err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
	}
	return nil
}

func (f Field) validate() error {
	switch f.Type {
	case TypeNumber:
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("min %v greater than max %v", *f.Min, *f.Max)
		}
		if f.Step != nil && *f.Step <= 0 {
			return fmt.Errorf("step must be positive")
		}
	case TypeString:
		if f.MaxLength != nil && *f.MaxLength < 0 {
			return fmt.Errorf("maxLength must not be negative")
		}
	case TypeSelect:
		if len(f.Options) == 0 {
			return fmt.Errorf("select requires options")
		}
	case TypeBoolean, TypeColor:
	default:
		return fmt.Errorf("unknown type %q", f.Type)
	}
	if f.Default == nil {
		return fmt.Errorf("missing default")
	}
	if _, err := f.Coerce(f.Default); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	return nil
}

// Coerce validates v against the field and returns its normalized form.
// Numbers become float64 and colors lowercase hex.
func (f Field) Coerce(v any) (any, error) {
	switch f.Type {
	case TypeNumber:
		n, ok := toFloat(v)
		if !ok {
			return nil, invalid("expected number, got %T", v)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, invalid("number must be finite")
		}
		if f.Min != nil && n < *f.Min {
			return nil, invalid("%v is below minimum %v", n, *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return nil, invalid("%v is above maximum %v", n, *f.Max)
		}
		if f.Step != nil && !onStep(n, f.base(), *f.Step) {
			return nil, invalid("%v is not a multiple of step %v", n, *f.Step)
		}
		return n, nil

	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, invalid("expected string, got %T", v)
		}
		if f.MaxLength != nil && uniseg.GraphemeClusterCount(s) > *f.MaxLength {
			return nil, invalid("string longer than %d characters", *f.MaxLength)
		}
		return s, nil

	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, invalid("expected boolean, got %T", v)
		}
		return b, nil

	case TypeColor:
		s, ok := v.(string)
		if !ok {
			return nil, invalid("expected color string, got %T", v)
		}
		return normalizeColor(s)

	case TypeSelect:
		s, ok := v.(string)
		if !ok {
			return nil, invalid("expected option string, got %T", v)
		}
		for _, opt := range f.Options {
			if opt == s {
				return s, nil
			}
		}
		return nil, invalid("%q is not one of %v", s, f.Options)
	}
	return nil, invalid("unknown type %q", f.Type)
}

func (f Field) base() float64 {
	if f.Min != nil {
		return *f.Min
	}
	return 0
}

func onStep(n, base, step float64) bool {
	q := (n - base) / step
	return math.Abs(q-math.Round(q)) < 1e-9
}

// normalizeColor accepts #rgb, #rrggbb and #rrggbbaa.
func normalizeColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	alpha := ""
	if len(s) == 9 && strings.HasPrefix(s, "#") {
		alpha = strings.ToLower(s[7:])
		if !isHex(alpha) {
			return "", invalid("invalid color %q", s)
		}
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return "", invalid("invalid color %q", s)
	}
	return c.Hex() + alpha, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func invalid(format string, args ...any) error {
	return fault.New(fault.InvalidSettingValue, "", fmt.Sprintf(format, args...))
}

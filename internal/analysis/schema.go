package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind is the declared type of a schema property.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Property describes one expected output field.
type Property struct {
	Type    Kind     `mapstructure:"type" json:"type"`
	Minimum *float64 `mapstructure:"minimum" json:"minimum,omitempty"`
	Maximum *float64 `mapstructure:"maximum" json:"maximum,omitempty"`
	Enum    []string `mapstructure:"enum" json:"enum,omitempty"`
}

// Schema is the tagged description of a prompt's expected output, as declared in the
// prompt file. Only object schemas with flat properties are supported.
type Schema struct {
	Type       string              `mapstructure:"type" json:"type"`
	Properties map[string]Property `mapstructure:"properties" json:"properties"`
	Required   []string            `mapstructure:"required" json:"required,omitempty"`
}

// Violation is a single schema check failure.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Reason
}

// Validate checks a decoded JSON object against the schema. A nil schema accepts anything.
func (s *Schema) Validate(fields map[string]any) []Violation {
	if s == nil {
		return nil
	}

	var out []Violation
	for _, name := range s.Required {
		if v, ok := fields[name]; !ok || v == nil {
			out = append(out, Violation{Field: name, Reason: "required field missing"})
		}
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}
		if reason := s.Properties[name].check(v); reason != "" {
			out = append(out, Violation{Field: name, Reason: reason})
		}
	}
	return out
}

func (p Property) check(v any) string {
	switch p.Type {
	case KindString:
		str, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %T", v)
		}
		if len(p.Enum) > 0 && !containsFold(p.Enum, str) {
			return fmt.Sprintf("%q is not one of %s", str, strings.Join(p.Enum, ", "))
		}
	case KindInteger, KindNumber:
		n, ok := toFloat(v)
		if !ok {
			return fmt.Sprintf("expected %s, got %T", p.Type, v)
		}
		if p.Type == KindInteger && n != math.Trunc(n) {
			return fmt.Sprintf("expected integer, got %v", n)
		}
		if p.Minimum != nil && n < *p.Minimum {
			return fmt.Sprintf("%v is below minimum %v", n, *p.Minimum)
		}
		if p.Maximum != nil && n > *p.Maximum {
			return fmt.Sprintf("%v is above maximum %v", n, *p.Maximum)
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", v)
		}
	}
	return ""
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

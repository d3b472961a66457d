package httpx

import (
	"fmt"
	"strings"
)

// FieldKind enumerates the declarative validator's supported checks,
// per spec.md §4.I: "required, type, min/max length/value, enum".
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindFloat
	KindBool
)

// FieldSpec declares one field's validation rule. Validators for a
// given request are composed as a []FieldSpec and run with Validate.
type FieldSpec struct {
	Name      string
	Kind      FieldKind
	Required  bool
	MinLen    int
	MaxLen    int
	MinValue  float64
	MaxValue  float64
	HasRange  bool
	Enum      []string
}

// Values is the decoded request body the validator inspects, keyed by
// field name; handlers build it from the bound struct before calling
// Validate so the same spec can run against JSON or multipart forms.
type Values map[string]interface{}

// Validate runs specs against values and returns the first violation
// message, or "" if all pass.
func Validate(values Values, specs []FieldSpec) string {
	for _, spec := range specs {
		v, present := values[spec.Name]
		if !present || v == nil {
			if spec.Required {
				return fmt.Sprintf("%s is required", spec.Name)
			}
			continue
		}
		if msg := validateOne(spec, v); msg != "" {
			return msg
		}
	}
	return ""
}

func validateOne(spec FieldSpec, v interface{}) string {
	switch spec.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("%s must be a string", spec.Name)
		}
		if spec.MinLen > 0 && len(s) < spec.MinLen {
			return fmt.Sprintf("%s must be at least %d characters", spec.Name, spec.MinLen)
		}
		if spec.MaxLen > 0 && len(s) > spec.MaxLen {
			return fmt.Sprintf("%s must be at most %d characters", spec.Name, spec.MaxLen)
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			return fmt.Sprintf("%s must be one of %s", spec.Name, strings.Join(spec.Enum, ", "))
		}
	case KindInt, KindFloat:
		n, ok := toFloat(v)
		if !ok {
			return fmt.Sprintf("%s must be numeric", spec.Name)
		}
		if spec.HasRange && (n < spec.MinValue || n > spec.MaxValue) {
			return fmt.Sprintf("%s must be between %v and %v", spec.Name, spec.MinValue, spec.MaxValue)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("%s must be a boolean", spec.Name)
		}
	}
	return ""
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

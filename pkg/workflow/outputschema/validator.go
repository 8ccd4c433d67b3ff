// Package outputschema validates structured LLM responses against a node's
// declared output schema and builds the prompt instructions that steer the
// model toward that schema.
package outputschema

import (
	"fmt"
	"strings"

	"github.com/ensemble-run/ensemble/pkg/config"
)

// Validator validates decoded LLM responses against an output schema.
type Validator interface {
	// Validate checks that data contains every declared field with a value
	// of the declared type. Extra fields not in the schema are rejected,
	// since outputs and schema fields must match exactly.
	Validate(schema config.OutputSchema, data map[string]interface{}) error
}

// DefaultValidator implements Validator for the supported type vocabulary
// (str, int, float, bool, object, list[T], dict[str,V]).
type DefaultValidator struct{}

// NewValidator creates a new output-schema validator.
func NewValidator() Validator {
	return &DefaultValidator{}
}

// Validate validates data against the schema.
func (v *DefaultValidator) Validate(schema config.OutputSchema, data map[string]interface{}) error {
	declared := make(map[string]bool, len(schema.Fields))
	for _, field := range schema.Fields {
		declared[field.Name] = true
		value, ok := data[field.Name]
		if !ok {
			return NewValidationError("$."+field.Name, "required",
				fmt.Sprintf("missing required field: %s", field.Name))
		}
		if err := v.validateValue(field.Type, value, "$."+field.Name); err != nil {
			return err
		}
	}

	for name := range data {
		if !declared[name] {
			return NewValidationError("$."+name, "additional",
				fmt.Sprintf("unexpected field %q not declared in output schema", name))
		}
	}

	return nil
}

// validateValue is the recursive type check with path tracking.
// JSON decoding yields float64 for all numbers, so integer checks accept
// whole-valued floats.
func (v *DefaultValidator) validateValue(declaredType string, data interface{}, path string) error {
	declaredType = strings.TrimSpace(declaredType)

	switch declaredType {
	case "str":
		if _, ok := data.(string); !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected str, got %T", data))
		}
		return nil

	case "int":
		switch n := data.(type) {
		case float64:
			if n != float64(int64(n)) {
				return NewValidationError(path, "type", fmt.Sprintf("expected int, got %v", n))
			}
		case int, int64:
		default:
			return NewValidationError(path, "type", fmt.Sprintf("expected int, got %T", data))
		}
		return nil

	case "float":
		switch data.(type) {
		case float64, float32, int, int64:
		default:
			return NewValidationError(path, "type", fmt.Sprintf("expected float, got %T", data))
		}
		return nil

	case "bool":
		if _, ok := data.(bool); !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected bool, got %T", data))
		}
		return nil

	case "object":
		if _, ok := data.(map[string]interface{}); !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected object, got %T", data))
		}
		return nil
	}

	if elem, ok := listElemType(declaredType); ok {
		arr, ok := data.([]interface{})
		if !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected %s, got %T", declaredType, data))
		}
		for i, item := range arr {
			if err := v.validateValue(elem, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	if val, ok := dictValueType(declaredType); ok {
		obj, ok := data.(map[string]interface{})
		if !ok {
			return NewValidationError(path, "type", fmt.Sprintf("expected %s, got %T", declaredType, data))
		}
		for key, item := range obj {
			if err := v.validateValue(val, item, fmt.Sprintf("%s.%s", path, key)); err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("unsupported schema type: %s", declaredType)
}

func listElemType(t string) (string, bool) {
	if strings.HasPrefix(t, "list[") && strings.HasSuffix(t, "]") {
		return t[len("list[") : len(t)-1], true
	}
	return "", false
}

func dictValueType(t string) (string, bool) {
	if !strings.HasPrefix(t, "dict[") || !strings.HasSuffix(t, "]") {
		return "", false
	}
	inner := t[len("dict[") : len(t)-1]
	_, val, found := strings.Cut(inner, ",")
	if !found {
		return "", false
	}
	return strings.TrimSpace(val), true
}

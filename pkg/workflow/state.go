// Package workflow executes validated workflow configs: it seeds the typed
// run state, plans the node sequence from the edge graph, and drives each
// node through its LLM call, schema check, and retry loop.
package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cast"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/errors"
)

// State is the typed key-value store shared by all nodes in a run.
// Fields are declared in the config's state schema; values are seeded from
// run inputs and defaults, then written by node outputs as the run advances.
type State struct {
	mu     sync.RWMutex
	schema config.StateSchema
	values map[string]interface{}
}

// NewState seeds a run state from the declared schema and the caller's
// inputs. Every required field must be supplied; fields with defaults fall
// back to the default when no input overrides them. Inputs naming fields
// the schema does not declare are rejected, as are inputs that cannot be
// coerced to the declared type.
func NewState(schema config.StateSchema, inputs map[string]interface{}) (*State, error) {
	st := &State{
		schema: schema,
		values: make(map[string]interface{}),
	}

	for name := range inputs {
		if _, ok := schema.Fields[name]; !ok {
			return nil, &errors.ValidationError{
				Path:       "inputs." + name,
				Message:    "input does not match any declared state field",
				Suggestion: "declare the field under state.fields or remove the input",
			}
		}
	}

	names := make([]string, 0, len(schema.Fields))
	for name := range schema.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := schema.Fields[name]
		if raw, ok := inputs[name]; ok {
			coerced, err := coerceValue(spec.Type, raw)
			if err != nil {
				return nil, &errors.ValidationError{
					Path:       "inputs." + name,
					Message:    fmt.Sprintf("cannot coerce input to %s: %v", spec.Type, err),
					Suggestion: fmt.Sprintf("provide a value of type %s", spec.Type),
				}
			}
			st.values[name] = coerced
			continue
		}
		if spec.Required {
			return nil, &errors.ValidationError{
				Path:       "inputs." + name,
				Message:    "required input is missing",
				Suggestion: fmt.Sprintf("supply a value for %q", name),
			}
		}
		if spec.Default != nil {
			st.values[name] = spec.Default
		}
	}

	return st, nil
}

// coerceValue converts a caller-supplied input to the declared field type.
// Composite types (list, dict, object) pass through untouched; the output
// schema validator owns structural checks for LLM-produced values.
func coerceValue(declaredType string, raw interface{}) (interface{}, error) {
	switch declaredType {
	case "str":
		return cast.ToStringE(raw)
	case "int":
		return cast.ToIntE(raw)
	case "float":
		return cast.ToFloat64E(raw)
	case "bool":
		return cast.ToBoolE(raw)
	default:
		return raw, nil
	}
}

// Get returns the current value of a state field, if one has been set.
func (s *State) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set writes a state field. The field must be declared in the schema.
func (s *State) Set(name string, value interface{}) error {
	if _, ok := s.schema.Fields[name]; !ok {
		return &errors.ValidationError{
			Path:    "state." + name,
			Message: "write to undeclared state field",
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}

// GetString returns a state field coerced to string, or "" when unset.
func (s *State) GetString(name string) string {
	v, ok := s.Get(name)
	if !ok {
		return ""
	}
	return cast.ToString(v)
}

// GetInt returns a state field coerced to int, or 0 when unset.
func (s *State) GetInt(name string) int {
	v, ok := s.Get(name)
	if !ok {
		return 0
	}
	return cast.ToInt(v)
}

// Snapshot returns a copy of all set fields.
func (s *State) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/errors"
)

// RenderPrompt resolves a node's prompt template against the run state.
// Unqualified placeholders ({summary}) resolve through the node's input
// bindings; {state.field} references read state directly. Doubled braces
// render as literal braces. Referencing a state field that has no value
// yet is an error.
func RenderPrompt(node config.NodeConfig, st *State) (string, error) {
	var b strings.Builder
	tmpl := node.Prompt

	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", &errors.ValidationError{
					Path:    "nodes." + node.ID + ".prompt",
					Message: fmt.Sprintf("unterminated placeholder at offset %d", i),
				}
			}
			raw := tmpl[i+1 : i+1+end]
			value, err := resolvePlaceholder(node, raw, st)
			if err != nil {
				return "", err
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			b.WriteByte('}')
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
		default:
			b.WriteByte(tmpl[i])
		}
	}

	return b.String(), nil
}

func resolvePlaceholder(node config.NodeConfig, raw string, st *State) (string, error) {
	field, ok := strings.CutPrefix(raw, "state.")
	if !ok {
		binding, bound := node.Inputs[raw]
		if !bound {
			return "", &errors.ValidationError{
				Path:       "nodes." + node.ID + ".prompt",
				Message:    fmt.Sprintf("placeholder {%s} has no input binding", raw),
				Suggestion: fmt.Sprintf("add %q to the node's inputs or reference state directly with {state.%s}", raw, raw),
			}
		}
		field = strings.TrimPrefix(binding, "state.")
	}

	value, set := st.Get(field)
	if !set {
		return "", &errors.ValidationError{
			Path:    "nodes." + node.ID + ".prompt",
			Message: fmt.Sprintf("state field %q has no value yet", field),
		}
	}
	return formatValue(value)
}

// formatValue renders a state value for prompt interpolation. Scalars use
// their natural string form; composite values are embedded as JSON.
func formatValue(v interface{}) (string, error) {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return cast.ToString(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", errors.Wrap(err, "rendering state value")
		}
		return string(data), nil
	}
}

package config

import (
	"fmt"
	"strings"
)

// Placeholder is a single template reference found in a prompt.
// Unqualified placeholders ({summary}) name an entry in the node's input
// binding map; qualified placeholders ({state.topic}) reference a state
// field directly.
type Placeholder struct {
	// Raw is the text between the braces, e.g. "topic" or "state.topic"
	Raw string

	// Name is the local binding name for unqualified placeholders
	Name string

	// StateField is the referenced field for state-qualified placeholders
	StateField string
}

// IsStateRef reports whether the placeholder references state directly.
func (p Placeholder) IsStateRef() bool {
	return p.StateField != ""
}

// Placeholders scans a prompt template and returns every placeholder it
// contains, in order of appearance. Doubled braces ({{ and }}) escape
// literal braces and produce no placeholder. Malformed references
// (unterminated braces, non-identifier names) are an error.
func Placeholders(tmpl string) ([]Placeholder, error) {
	var found []Placeholder
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			raw := tmpl[i+1 : i+1+end]
			p, err := parsePlaceholder(raw)
			if err != nil {
				return nil, err
			}
			found = append(found, p)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				i++
			}
		}
	}
	return found, nil
}

func parsePlaceholder(raw string) (Placeholder, error) {
	if field, ok := strings.CutPrefix(raw, "state."); ok {
		if !ValidIdentifier(field) {
			return Placeholder{}, fmt.Errorf("invalid state reference {%s}: %q is not a valid field name", raw, field)
		}
		return Placeholder{Raw: raw, StateField: field}, nil
	}
	if !ValidIdentifier(raw) {
		return Placeholder{}, fmt.Errorf("invalid placeholder {%s}: not an identifier or state.field reference", raw)
	}
	return Placeholder{Raw: raw, Name: raw}, nil
}

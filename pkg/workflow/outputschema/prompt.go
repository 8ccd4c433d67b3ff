package outputschema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ensemble-run/ensemble/pkg/config"
)

// BuildPromptWithSchema appends output-schema instructions to a rendered
// prompt. The instruction escalates with each retry attempt: a plain
// structure hint first, then an explicit correction, then a full example.
func BuildPromptWithSchema(originalPrompt string, schema config.OutputSchema, retryAttempt int) string {
	schemaDesc := formatSchemaForPrompt(schema)

	var instruction string
	switch retryAttempt {
	case 0:
		instruction = fmt.Sprintf("\n\nPlease respond with valid JSON matching this structure:\n%s", schemaDesc)
	case 1:
		instruction = fmt.Sprintf("\n\nIMPORTANT: Your previous response didn't match the required format. Please respond with valid JSON matching this schema:\n%s\n\nRespond ONLY with the JSON object, no additional text.", schemaDesc)
	default:
		exampleJSON := buildExampleJSON(schema)
		instruction = fmt.Sprintf("\n\nCRITICAL: You must respond with ONLY valid JSON. No explanations, no markdown, just the JSON object.\n\nRequired format:\n%s\n\nExample:\n%s", schemaDesc, exampleJSON)
	}

	return originalPrompt + instruction
}

// formatSchemaForPrompt creates a human-readable description of the schema.
func formatSchemaForPrompt(schema config.OutputSchema) string {
	var sb strings.Builder
	sb.WriteString("{\n")

	for i, field := range schema.Fields {
		if i > 0 {
			sb.WriteString(",\n")
		}
		desc := ""
		if field.Description != "" {
			desc = " // " + field.Description
		}
		sb.WriteString(fmt.Sprintf("  %q: %s%s", field.Name, field.Type, desc))
	}

	sb.WriteString("\n}")
	return sb.String()
}

// buildExampleJSON creates an example JSON object from the schema.
func buildExampleJSON(schema config.OutputSchema) string {
	example := make(map[string]interface{}, len(schema.Fields))
	for _, field := range schema.Fields {
		example[field.Name] = exampleValue(field.Type)
	}
	jsonBytes, _ := json.MarshalIndent(example, "", "  ")
	return string(jsonBytes)
}

// exampleValue builds an example value for a declared type.
func exampleValue(declaredType string) interface{} {
	declaredType = strings.TrimSpace(declaredType)

	switch declaredType {
	case "str":
		return "example"
	case "int":
		return 1
	case "float":
		return 1.5
	case "bool":
		return true
	case "object":
		return map[string]interface{}{"key": "value"}
	}

	if elem, ok := listElemType(declaredType); ok {
		return []interface{}{exampleValue(elem)}
	}
	if val, ok := dictValueType(declaredType); ok {
		return map[string]interface{}{"key": exampleValue(val)}
	}
	return nil
}

// ExtractJSON attempts to extract a JSON object from an LLM response that
// may contain extra text or markdown fencing.
func ExtractJSON(response string) (map[string]interface{}, error) {
	response = strings.TrimSpace(response)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(response), &data); err == nil {
		return data, nil
	}

	if extracted := extractFromCodeBlock(response); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), &data); err == nil {
			return data, nil
		}
	}

	if extracted := extractJSONFromText(response); extracted != "" {
		if err := json.Unmarshal([]byte(extracted), &data); err == nil {
			return data, nil
		}
	}

	return nil, fmt.Errorf("could not extract valid JSON object from response")
}

// extractFromCodeBlock extracts content from markdown code blocks.
func extractFromCodeBlock(text string) string {
	patterns := []string{
		"(?s)```json\\s*\\n(.+?)```",
		"(?s)```\\s*\\n(.+?)```",
	}

	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		if matches := re.FindStringSubmatch(text); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	return ""
}

// extractJSONFromText tries to find a balanced JSON object in arbitrary text.
func extractJSONFromText(text string) string {
	var depth int
	var start int
	var inString bool
	var escape bool
	var foundStart bool

	for i, ch := range text {
		if escape {
			escape = false
			continue
		}

		switch ch {
		case '\\':
			if inString {
				escape = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
					foundStart = true
				}
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 && foundStart {
					return text[start : i+1]
				}
			}
		}
	}

	return ""
}

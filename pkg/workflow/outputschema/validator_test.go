package outputschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/pkg/config"
)

func objectSchema(fields ...config.OutputField) config.OutputSchema {
	return config.OutputSchema{Type: "object", Fields: fields}
}

func TestValidateAcceptsMatchingResponse(t *testing.T) {
	schema := objectSchema(
		config.OutputField{Name: "summary", Type: "str"},
		config.OutputField{Name: "word_count", Type: "int"},
		config.OutputField{Name: "confident", Type: "bool"},
	)

	err := NewValidator().Validate(schema, map[string]interface{}{
		"summary":    "AI is a broad field.",
		"word_count": float64(5), // JSON numbers decode as float64
		"confident":  true,
	})
	assert.NoError(t, err)
}

func TestValidateMissingField(t *testing.T) {
	schema := objectSchema(config.OutputField{Name: "summary", Type: "str"})

	err := NewValidator().Validate(schema, map[string]interface{}{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "$.summary", valErr.Path)
	assert.Equal(t, "required", valErr.Keyword)
}

func TestValidateUnexpectedField(t *testing.T) {
	schema := objectSchema(config.OutputField{Name: "summary", Type: "str"})

	err := NewValidator().Validate(schema, map[string]interface{}{
		"summary": "ok",
		"extra":   "nope",
	})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "$.extra", valErr.Path)
}

func TestValidateTypeChecks(t *testing.T) {
	tests := []struct {
		name      string
		fieldType string
		value     interface{}
		wantErr   bool
	}{
		{"str ok", "str", "hello", false},
		{"str rejects number", "str", float64(3), true},
		{"int ok whole float", "int", float64(7), false},
		{"int rejects fraction", "int", 7.5, true},
		{"int rejects string", "int", "7", true},
		{"float ok", "float", 3.14, false},
		{"float accepts whole", "float", float64(3), false},
		{"bool ok", "bool", false, false},
		{"bool rejects string", "bool", "true", true},
		{"object ok", "object", map[string]interface{}{"a": 1}, false},
		{"object rejects list", "object", []interface{}{}, true},
		{"list of str ok", "list[str]", []interface{}{"a", "b"}, false},
		{"list element type", "list[str]", []interface{}{"a", float64(2)}, true},
		{"list rejects scalar", "list[str]", "a", true},
		{"nested list", "list[list[int]]", []interface{}{[]interface{}{float64(1)}}, false},
		{"dict ok", "dict[str,int]", map[string]interface{}{"n": float64(3)}, false},
		{"dict value type", "dict[str,int]", map[string]interface{}{"n": "three"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := objectSchema(config.OutputField{Name: "value", Type: tt.fieldType})
			err := NewValidator().Validate(schema, map[string]interface{}{"value": tt.value})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationErrorPathTracking(t *testing.T) {
	schema := objectSchema(config.OutputField{Name: "tags", Type: "list[str]"})

	err := NewValidator().Validate(schema, map[string]interface{}{
		"tags": []interface{}{"ok", float64(2)},
	})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "$.tags[1]", valErr.Path)
	assert.Equal(t, "type", valErr.Keyword)
}

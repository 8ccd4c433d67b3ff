package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIdentifier(t *testing.T) {
	valid := []string{"topic", "word_count", "_private", "n1", "A"}
	for _, s := range valid {
		assert.True(t, ValidIdentifier(s), s)
	}

	invalid := []string{"", "1topic", "state.topic", "with-dash", "with space", "emoji✨"}
	for _, s := range invalid {
		assert.False(t, ValidIdentifier(s), s)
	}
}

func TestValidFieldType(t *testing.T) {
	valid := []string{
		"str", "int", "float", "bool", "object",
		"list[str]", "list[int]", "list[list[str]]",
		"dict[str,int]", "dict[str, str]", "dict[str,list[float]]",
	}
	for _, ty := range valid {
		assert.True(t, ValidFieldType(ty), ty)
	}

	invalid := []string{
		"", "string", "number", "list", "list[]", "list[nope]",
		"dict[int,str]", "dict[str]", "dict[str,]", "map[str]str",
	}
	for _, ty := range invalid {
		assert.False(t, ValidFieldType(ty), ty)
	}
}

func TestTypesCompatible(t *testing.T) {
	assert.True(t, TypesCompatible("str", "str"))
	assert.True(t, TypesCompatible("dict[str, int]", "dict[str,int]"))
	assert.True(t, TypesCompatible(" list[str] ", "list[str]"))
	assert.False(t, TypesCompatible("str", "int"))
	assert.False(t, TypesCompatible("list[str]", "list[int]"))
}

func TestLLMConfigMerge(t *testing.T) {
	temp := 0.2
	tokens := 512
	global := &LLMConfig{Provider: "anthropic", Model: "claude-sonnet", Temperature: &temp, MaxTokens: &tokens}

	t.Run("node override wins", func(t *testing.T) {
		override := &LLMConfig{Model: "claude-haiku"}
		merged := override.Merge(global)
		assert.Equal(t, "anthropic", merged.Provider)
		assert.Equal(t, "claude-haiku", merged.Model)
		assert.Equal(t, &temp, merged.Temperature)
	})

	t.Run("nil override yields global", func(t *testing.T) {
		var override *LLMConfig
		merged := override.Merge(global)
		assert.Equal(t, *global, *merged)
	})

	t.Run("both nil", func(t *testing.T) {
		var a, b *LLMConfig
		assert.Nil(t, a.Merge(b))
	})
}

func TestOutputSchemaHelpers(t *testing.T) {
	schema := OutputSchema{
		Type: "object",
		Fields: []OutputField{
			{Name: "summary", Type: "str"},
			{Name: "score", Type: "float"},
		},
	}

	assert.Equal(t, []string{"summary", "score"}, schema.FieldNames())

	f, ok := schema.Field("score")
	assert.True(t, ok)
	assert.Equal(t, "float", f.Type)

	_, ok = schema.Field("missing")
	assert.False(t, ok)
}

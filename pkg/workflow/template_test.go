package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/pkg/config"
)

func renderState(t *testing.T, values map[string]interface{}) *State {
	t.Helper()
	fields := map[string]config.FieldSpec{
		"topic":    {Type: "str", Required: true},
		"notes":    {Type: "list[str]"},
		"attempts": {Type: "int"},
	}
	st, err := NewState(config.StateSchema{Fields: fields}, values)
	require.NoError(t, err)
	return st
}

func TestRenderPromptStateReference(t *testing.T) {
	st := renderState(t, map[string]interface{}{"topic": "goroutines"})
	node := config.NodeConfig{
		ID:     "write",
		Prompt: "Write about {state.topic}.",
	}

	out, err := RenderPrompt(node, st)
	require.NoError(t, err)
	assert.Equal(t, "Write about goroutines.", out)
}

func TestRenderPromptInputBinding(t *testing.T) {
	st := renderState(t, map[string]interface{}{"topic": "goroutines"})
	node := config.NodeConfig{
		ID:     "write",
		Inputs: map[string]string{"subject": "state.topic"},
		Prompt: "Write about {subject}.",
	}

	out, err := RenderPrompt(node, st)
	require.NoError(t, err)
	assert.Equal(t, "Write about goroutines.", out)
}

func TestRenderPromptBareBinding(t *testing.T) {
	st := renderState(t, map[string]interface{}{"topic": "goroutines"})
	node := config.NodeConfig{
		ID:     "write",
		Inputs: map[string]string{"subject": "topic"},
		Prompt: "Write about {subject}.",
	}

	out, err := RenderPrompt(node, st)
	require.NoError(t, err)
	assert.Equal(t, "Write about goroutines.", out)
}

func TestRenderPromptEscapedBraces(t *testing.T) {
	st := renderState(t, map[string]interface{}{"topic": "json"})
	node := config.NodeConfig{
		ID:     "write",
		Prompt: `Respond with {{"topic": "{state.topic}"}}`,
	}

	out, err := RenderPrompt(node, st)
	require.NoError(t, err)
	assert.Equal(t, `Respond with {"topic": "json"}`, out)
}

func TestRenderPromptUnboundPlaceholder(t *testing.T) {
	st := renderState(t, map[string]interface{}{"topic": "x"})
	node := config.NodeConfig{
		ID:     "write",
		Prompt: "Write about {subject}.",
	}

	_, err := RenderPrompt(node, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{subject}")
}

func TestRenderPromptUnsetStateField(t *testing.T) {
	st := renderState(t, map[string]interface{}{"topic": "x"})
	node := config.NodeConfig{
		ID:     "write",
		Prompt: "Consider {state.notes}.",
	}

	_, err := RenderPrompt(node, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes")
}

func TestRenderPromptCompositeValueAsJSON(t *testing.T) {
	st := renderState(t, map[string]interface{}{
		"topic": "x",
		"notes": []string{"a", "b"},
	})
	node := config.NodeConfig{
		ID:     "write",
		Prompt: "Notes: {state.notes}",
	}

	out, err := RenderPrompt(node, st)
	require.NoError(t, err)
	assert.Equal(t, `Notes: ["a","b"]`, out)
}

func TestRenderPromptUnterminatedPlaceholder(t *testing.T) {
	st := renderState(t, map[string]interface{}{"topic": "x"})
	node := config.NodeConfig{
		ID:     "write",
		Prompt: "Write about {state.topic",
	}

	_, err := RenderPrompt(node, st)
	require.Error(t, err)
}

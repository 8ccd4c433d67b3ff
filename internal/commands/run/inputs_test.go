package run

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/pkg/config"
)

func TestCollectInputsFlags(t *testing.T) {
	inputs, err := collectInputs([]string{"topic=go", "max_words=250"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "go", inputs["topic"])
	assert.Equal(t, "250", inputs["max_words"])
}

func TestCollectInputsValueWithEquals(t *testing.T) {
	inputs, err := collectInputs([]string{"query=a=b"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "a=b", inputs["query"])
}

func TestCollectInputsMalformed(t *testing.T) {
	_, err := collectInputs([]string{"no-equals-here"}, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")
}

func TestCollectInputsFlagOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"topic": "from file", "extra": 7}`), 0o644))

	inputs, err := collectInputs([]string{"topic=from flag"}, path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from flag", inputs["topic"])
	assert.Equal(t, float64(7), inputs["extra"])
}

func TestLoadInputFileStdin(t *testing.T) {
	inputs, err := loadInputFile("-", strings.NewReader(`{"topic": "piped"}`))
	require.NoError(t, err)
	assert.Equal(t, "piped", inputs["topic"])
}

func TestLoadInputFileNotObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o644))

	_, err := loadInputFile(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON object")
}

func inputFixture() *config.WorkflowConfig {
	return &config.WorkflowConfig{
		State: config.StateSchema{
			Fields: map[string]config.FieldSpec{
				"topic":     {Type: "str", Required: true, Description: "what to write about"},
				"audience":  {Type: "str", Required: true},
				"max_words": {Type: "int", Default: 500},
				"summary":   {Type: "str"},
			},
		},
	}
}

func TestMissingRequired(t *testing.T) {
	cfg := inputFixture()

	missing := missingRequired(cfg, map[string]interface{}{})
	assert.Equal(t, []string{"audience", "topic"}, missing)

	missing = missingRequired(cfg, map[string]interface{}{"topic": "go"})
	assert.Equal(t, []string{"audience"}, missing)

	missing = missingRequired(cfg, map[string]interface{}{"topic": "go", "audience": "devs"})
	assert.Empty(t, missing)
}

func TestPromptForInputs(t *testing.T) {
	cfg := inputFixture()
	in := strings.NewReader("go schedulers\ndevelopers\n")
	var out bytes.Buffer

	values, err := promptForInputs(cfg, []string{"topic", "audience"}, in, &out)
	require.NoError(t, err)

	assert.Equal(t, "go schedulers", values["topic"])
	assert.Equal(t, "developers", values["audience"])
	assert.Contains(t, out.String(), "what to write about")
}

func TestPromptForInputsEmptyValue(t *testing.T) {
	cfg := inputFixture()
	in := strings.NewReader("\n")
	var out bytes.Buffer

	_, err := promptForInputs(cfg, []string{"topic"}, in, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

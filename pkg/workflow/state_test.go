package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/errors"
)

func articleSchema() config.StateSchema {
	return config.StateSchema{
		Fields: map[string]config.FieldSpec{
			"topic":     {Type: "str", Required: true},
			"tone":      {Type: "str", Default: "neutral"},
			"max_words": {Type: "int", Default: 500},
			"summary":   {Type: "str"},
			"tags":      {Type: "list[str]"},
		},
	}
}

func TestNewStateSeedsInputsAndDefaults(t *testing.T) {
	st, err := NewState(articleSchema(), map[string]interface{}{
		"topic": "go generics",
	})
	require.NoError(t, err)

	assert.Equal(t, "go generics", st.GetString("topic"))
	assert.Equal(t, "neutral", st.GetString("tone"))
	assert.Equal(t, 500, st.GetInt("max_words"))

	_, set := st.Get("summary")
	assert.False(t, set, "fields without inputs or defaults start unset")
}

func TestNewStateInputOverridesDefault(t *testing.T) {
	st, err := NewState(articleSchema(), map[string]interface{}{
		"topic": "go generics",
		"tone":  "formal",
	})
	require.NoError(t, err)
	assert.Equal(t, "formal", st.GetString("tone"))
}

func TestNewStateMissingRequiredInput(t *testing.T) {
	_, err := NewState(articleSchema(), map[string]interface{}{})
	require.Error(t, err)

	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "inputs.topic", verr.Path)
}

func TestNewStateRejectsUndeclaredInput(t *testing.T) {
	_, err := NewState(articleSchema(), map[string]interface{}{
		"topic":  "go generics",
		"author": "nobody",
	})
	require.Error(t, err)

	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "inputs.author", verr.Path)
}

func TestNewStateCoercesScalarInputs(t *testing.T) {
	st, err := NewState(articleSchema(), map[string]interface{}{
		"topic":     "go generics",
		"max_words": "250",
	})
	require.NoError(t, err)
	assert.Equal(t, 250, st.GetInt("max_words"))
}

func TestNewStateCoercionFailure(t *testing.T) {
	_, err := NewState(articleSchema(), map[string]interface{}{
		"topic":     "go generics",
		"max_words": "lots",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputs.max_words")
}

func TestStateSetAndGet(t *testing.T) {
	st, err := NewState(articleSchema(), map[string]interface{}{"topic": "x"})
	require.NoError(t, err)

	require.NoError(t, st.Set("summary", "short text"))
	v, ok := st.Get("summary")
	require.True(t, ok)
	assert.Equal(t, "short text", v)
}

func TestStateSetUndeclaredField(t *testing.T) {
	st, err := NewState(articleSchema(), map[string]interface{}{"topic": "x"})
	require.NoError(t, err)

	err = st.Set("nonexistent", 1)
	require.Error(t, err)
}

func TestStateSnapshotIsACopy(t *testing.T) {
	st, err := NewState(articleSchema(), map[string]interface{}{"topic": "x"})
	require.NoError(t, err)

	snap := st.Snapshot()
	snap["topic"] = "mutated"
	assert.Equal(t, "x", st.GetString("topic"))
}

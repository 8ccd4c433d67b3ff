package shared

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/ensemble-run/ensemble/pkg/errors"
)

func TestExitErrorMessage(t *testing.T) {
	err := NewInvalidWorkflowError("config failed validation", fmt.Errorf("3 errors"))
	assert.Equal(t, "config failed validation: 3 errors", err.Error())
	assert.Equal(t, ExitInvalidWorkflow, err.Code)

	bare := NewMissingInputError("missing input topic", nil)
	assert.Equal(t, "missing input topic", bare.Error())
	assert.Equal(t, ExitMissingInput, bare.Code)
}

func TestSuggestionFor(t *testing.T) {
	verr := &pkgerrors.ValidationError{
		Path:       "nodes.summarize",
		Message:    "bad outputs",
		Suggestion: "align outputs with output_schema",
	}
	wrapped := NewInvalidWorkflowError("validation failed", verr)
	assert.Equal(t, "align outputs with output_schema", suggestionFor(wrapped))

	assert.Empty(t, suggestionFor(fmt.Errorf("plain error")))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation error",
			err:  &pkgerrors.ValidationError{Path: "state", Message: "x"},
			want: ErrorCodeSchemaViolation,
		},
		{
			name: "timeout",
			err:  &pkgerrors.TimeoutError{Operation: "node summarize"},
			want: ErrorCodeProviderTimeout,
		},
		{
			name: "not found",
			err:  &pkgerrors.NotFoundError{Resource: "provider", ID: "mock"},
			want: ErrorCodeNotFound,
		},
		{
			name: "missing input exit error",
			err:  NewMissingInputError("missing topic", nil),
			want: ErrorCodeMissingInput,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
			want: ErrorCodeNodeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/pkg/errors"
)

type namedProvider string

func (n namedProvider) Name() string { return string(n) }

func (n namedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "hi"}, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(namedProvider("anthropic"))
	reg.Register(namedProvider("mock"))

	p, err := reg.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	assert.Equal(t, []string{"anthropic", "mock"}, reg.Names())
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("ghost")
	require.Error(t, err)

	var nfErr *errors.NotFoundError
	require.True(t, errors.As(err, &nfErr))
	assert.Equal(t, "provider", nfErr.Resource)
	assert.Equal(t, "ghost", nfErr.ID)
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	assert.InDelta(t, 18.0, EstimateCost("claude-sonnet-4", usage), 1e-9)
	assert.InDelta(t, 0.75, EstimateCost("gpt-4o-mini-2024", usage), 1e-9)
	assert.Zero(t, EstimateCost("unknown-model", usage))
}

func TestTokenUsageAdd(t *testing.T) {
	total := TokenUsage{}
	total.Add(TokenUsage{InputTokens: 5, OutputTokens: 7, TotalTokens: 12})
	total.Add(TokenUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3})
	assert.Equal(t, TokenUsage{InputTokens: 6, OutputTokens: 9, TotalTokens: 15}, total)
}

// Package llmtest provides a scripted mock provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ensemble-run/ensemble/pkg/llm"
)

// Response is one scripted turn: either content to return or an error.
type Response struct {
	Content string
	Err     error
	Usage   llm.TokenUsage
}

// MockProvider replays a fixed script of responses in order and records
// every request it receives. It is safe for concurrent use.
type MockProvider struct {
	mu       sync.Mutex
	name     string
	script   []Response
	calls    int
	Requests []llm.CompletionRequest
}

// NewMockProvider creates a mock provider that replays the given script.
// Once the script is exhausted, further calls repeat the last entry.
func NewMockProvider(script ...Response) *MockProvider {
	return &MockProvider{name: "mock", script: script}
}

// Name returns "mock".
func (m *MockProvider) Name() string { return m.name }

// Complete records the request and returns the next scripted response.
func (m *MockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if len(m.script) == 0 {
		return nil, fmt.Errorf("mock provider has no scripted responses")
	}

	idx := m.calls
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.calls++

	turn := m.script[idx]
	if turn.Err != nil {
		return nil, turn.Err
	}

	usage := turn.Usage
	if usage == (llm.TokenUsage{}) {
		usage = llm.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	}

	return &llm.CompletionResponse{
		Content:      turn.Content,
		FinishReason: llm.FinishReasonStop,
		Usage:        usage,
		Model:        req.Model,
		RequestID:    uuid.NewString(),
		Created:      time.Now(),
	}, nil
}

// Calls returns how many completion requests have been made.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/llm"
	"github.com/ensemble-run/ensemble/pkg/llm/llmtest"
	"github.com/ensemble-run/ensemble/pkg/observability"
	"github.com/ensemble-run/ensemble/pkg/tools"
)

// pipelineConfig is a two-node summarize-then-tag workflow used across
// the executor tests.
func pipelineConfig() *config.WorkflowConfig {
	return &config.WorkflowConfig{
		SchemaVersion: "1.0",
		Flow:          config.FlowMeta{Name: "summarize-and-tag"},
		State: config.StateSchema{
			Fields: map[string]config.FieldSpec{
				"topic":   {Type: "str", Required: true},
				"summary": {Type: "str"},
				"tag":     {Type: "str"},
			},
		},
		Nodes: []config.NodeConfig{
			{
				ID:     "summarize",
				Prompt: "Summarize {state.topic}.",
				OutputSchema: config.OutputSchema{
					Type:   "object",
					Fields: []config.OutputField{{Name: "summary", Type: "str"}},
				},
				Outputs: []string{"summary"},
			},
			{
				ID:     "tag",
				Inputs: map[string]string{"text": "state.summary"},
				Prompt: "Pick one tag for: {text}",
				OutputSchema: config.OutputSchema{
					Type:   "object",
					Fields: []config.OutputField{{Name: "tag", Type: "str"}},
				},
				Outputs: []string{"tag"},
			},
		},
		Edges: []config.EdgeConfig{
			{From: config.StartNode, To: "summarize"},
			{From: "summarize", To: "tag"},
			{From: "tag", To: config.EndNode},
		},
		Global: &config.GlobalConfig{
			LLM: &config.LLMConfig{Provider: "mock", Model: "claude-sonnet-4"},
		},
	}
}

func newTestRunner(mock *llmtest.MockProvider, opts ...RunnerOption) *Runner {
	reg := llm.NewRegistry()
	reg.Register(mock)
	return NewRunner(append([]RunnerOption{WithProviders(reg)}, opts...)...)
}

// captureSink collects everything the runner ships to telemetry.
type captureSink struct {
	mu    sync.Mutex
	runs  []observability.RunInfo
	ends  map[string]error
	nodes []observability.NodeRecord
}

func newCaptureSink() *captureSink {
	return &captureSink{ends: make(map[string]error)}
}

func (c *captureSink) StartRun(_ context.Context, info observability.RunInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, info)
}

func (c *captureSink) EndRun(_ context.Context, runID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ends[runID] = err
}

func (c *captureSink) RecordNode(_ context.Context, rec observability.NodeRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, rec)
}

func (c *captureSink) Shutdown(context.Context) error { return nil }

func TestRunHappyPath(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Content: `{"summary": "short version"}`},
		llmtest.Response{Content: `{"tag": "tech"}`},
	)
	sink := newCaptureSink()
	runner := newTestRunner(mock, WithSink(sink))

	result, err := runner.Run(context.Background(), pipelineConfig(),
		map[string]interface{}{"topic": "go schedulers"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "summarize-and-tag", result.Workflow)
	assert.Equal(t, "short version", result.State["summary"])
	assert.Equal(t, "tech", result.State["tag"])

	require.Len(t, result.Nodes, 2)
	for _, n := range result.Nodes {
		assert.Equal(t, NodeStatusSucceeded, n.Status)
		assert.Equal(t, 1, n.Attempts)
	}

	// Second prompt saw the first node's output through state.
	require.Equal(t, 2, mock.Calls())
	assert.Contains(t, mock.Requests[1].Messages[0].Content, "short version")

	usage := result.Usage()
	assert.Equal(t, 20, usage.InputTokens)
	assert.Greater(t, result.CostUSD(), 0.0)

	require.Len(t, sink.runs, 1)
	require.Len(t, sink.nodes, 2)
	assert.NoError(t, sink.ends[result.RunID])
}

func TestRunRetriesOnSchemaMismatch(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Content: `The summary is: short version`},
		llmtest.Response{Content: `{"summary": "short version"}`},
		llmtest.Response{Content: `{"tag": "tech"}`},
	)
	runner := newTestRunner(mock)

	result, err := runner.Run(context.Background(), pipelineConfig(),
		map[string]interface{}{"topic": "go schedulers"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Nodes[0].Attempts)
	assert.Equal(t, NodeStatusSucceeded, result.Nodes[0].Status)

	// The retry prompt escalates with an explicit correction.
	require.GreaterOrEqual(t, mock.Calls(), 2)
	assert.Contains(t, mock.Requests[1].Messages[0].Content, "IMPORTANT")
	assert.NotContains(t, mock.Requests[0].Messages[0].Content, "IMPORTANT")
}

func TestRunFailsAfterExhaustingRetries(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Content: `not json at all`},
	)
	sink := newCaptureSink()
	runner := newTestRunner(mock, WithSink(sink))

	cfg := pipelineConfig()
	cfg.Global.Execution = &config.ExecutionConfig{MaxRetries: 1}

	result, err := runner.Run(context.Background(), cfg,
		map[string]interface{}{"topic": "go schedulers"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize")

	require.Len(t, result.Nodes, 1)
	assert.Equal(t, NodeStatusFailedFatal, result.Nodes[0].Status)
	assert.Equal(t, 2, result.Nodes[0].Attempts)

	require.Len(t, sink.nodes, 1)
	assert.Equal(t, string(NodeStatusFailedFatal), sink.nodes[0].Status)
	assert.Error(t, sink.ends[result.RunID])
}

func TestRunRetriesTransientProviderError(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Err: fmt.Errorf("upstream hiccup")},
		llmtest.Response{Content: `{"summary": "short version"}`},
		llmtest.Response{Content: `{"tag": "tech"}`},
	)
	runner := newTestRunner(mock)

	result, err := runner.Run(context.Background(), pipelineConfig(),
		map[string]interface{}{"topic": "go schedulers"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Nodes[0].Attempts)
}

func TestRunMissingRequiredInput(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Content: `{"summary": "unused"}`},
	)
	runner := newTestRunner(mock)

	_, err := runner.Run(context.Background(), pipelineConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
	assert.Zero(t, mock.Calls(), "no provider call before input validation")
}

func TestRunUnknownProvider(t *testing.T) {
	sink := newCaptureSink()
	runner := NewRunner(WithProviders(llm.NewRegistry()), WithSink(sink))

	result, err := runner.Run(context.Background(), pipelineConfig(),
		map[string]interface{}{"topic": "go schedulers"})
	require.Error(t, err)
	require.Len(t, result.Nodes, 1)
	assert.Equal(t, NodeStatusFailedFatal, result.Nodes[0].Status)

	// The telemetry record carries the terminal status and error, not the
	// in-flight RUNNING snapshot.
	require.Len(t, sink.nodes, 1)
	assert.Equal(t, string(NodeStatusFailedFatal), sink.nodes[0].Status)
	assert.NotEmpty(t, sink.nodes[0].Error)
}

func TestRunReportsNodeDurations(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Content: `{"summary": "short version"}`},
		llmtest.Response{Content: `{"tag": "tech"}`},
	)
	sink := newCaptureSink()
	runner := newTestRunner(mock, WithSink(sink))

	result, err := runner.Run(context.Background(), pipelineConfig(),
		map[string]interface{}{"topic": "go schedulers"})
	require.NoError(t, err)

	require.Len(t, result.Nodes, 2)
	for _, n := range result.Nodes {
		assert.Greater(t, n.Duration, time.Duration(0), "node %s duration", n.NodeID)
	}

	require.Len(t, sink.nodes, 2)
	for _, rec := range sink.nodes {
		assert.Greater(t, rec.Duration, time.Duration(0), "node %s record duration", rec.NodeID)
	}
}

func TestRunUnknownToolIsFatal(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Content: `{"summary": "unused"}`},
	)
	runner := newTestRunner(mock, WithTools(tools.NewStaticRegistry("search")))

	cfg := pipelineConfig()
	cfg.Nodes[0].Tools = []string{"search", "browser"}

	result, err := runner.Run(context.Background(), cfg,
		map[string]interface{}{"topic": "go schedulers"})
	require.Error(t, err)

	require.Len(t, result.Nodes, 1)
	assert.Equal(t, NodeStatusFailedFatal, result.Nodes[0].Status)
	assert.Contains(t, result.Nodes[0].Error, "browser")
	assert.Equal(t, 0, mock.Calls(), "no provider call for an unknown tool")
}

func TestRunRegisteredToolsAdvertised(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Content: `{"summary": "short version"}`},
		llmtest.Response{Content: `{"tag": "tech"}`},
	)
	runner := newTestRunner(mock, WithTools(tools.NewStaticRegistry("search")))

	cfg := pipelineConfig()
	cfg.Nodes[0].Tools = []string{"search"}

	_, err := runner.Run(context.Background(), cfg,
		map[string]interface{}{"topic": "go schedulers"})
	require.NoError(t, err)

	require.Equal(t, 2, mock.Calls())
	assert.Equal(t, "search", mock.Requests[0].Metadata["tools"])
}

// slowProvider blocks until its context is cancelled.
type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }

func (slowProvider) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunNodeTimeoutIsFatal(t *testing.T) {
	reg := llm.NewRegistry()
	reg.Register(slowProvider{})
	runner := NewRunner(WithProviders(reg))

	cfg := pipelineConfig()
	cfg.Global.LLM.Provider = "slow"
	cfg.Global.Execution = &config.ExecutionConfig{NodeTimeout: 1, MaxRetries: 5}

	start := time.Now()
	result, err := runner.Run(context.Background(), cfg,
		map[string]interface{}{"topic": "go schedulers"})
	require.Error(t, err)

	require.Len(t, result.Nodes, 1)
	assert.Equal(t, NodeStatusFailedFatal, result.Nodes[0].Status)
	assert.Equal(t, 1, result.Nodes[0].Attempts, "timeouts are not retried")
	assert.True(t, strings.Contains(result.Nodes[0].Error, "timed out") ||
		strings.Contains(result.Nodes[0].Error, "deadline"),
		"error should mention the timeout: %s", result.Nodes[0].Error)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunArtifactLogging(t *testing.T) {
	mock := llmtest.NewMockProvider(
		llmtest.Response{Content: `{"summary": "short version"}`},
		llmtest.Response{Content: `{"tag": "tech"}`},
	)
	sink := newCaptureSink()
	runner := newTestRunner(mock, WithSink(sink))

	cfg := pipelineConfig()
	cfg.Global.Observability = &config.ObservabilityConfig{LogArtifacts: true}

	_, err := runner.Run(context.Background(), cfg,
		map[string]interface{}{"topic": "go schedulers"})
	require.NoError(t, err)

	require.Len(t, sink.nodes, 2)
	assert.Contains(t, sink.nodes[0].Prompt, "Summarize go schedulers.")
}

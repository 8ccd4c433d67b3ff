package run

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-run/ensemble/internal/commands/shared"
	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/llm"
	"github.com/ensemble-run/ensemble/pkg/llm/llmtest"
)

const summarizeWorkflow = `schema_version: "1.0"
flow:
  name: summarize
state:
  fields:
    topic:
      type: str
      required: true
    summary:
      type: str
nodes:
  - id: summarize
    prompt: "Summarize {state.topic}."
    output_schema:
      type: object
      fields:
        - name: summary
          type: str
    outputs: [summary]
    llm:
      provider: mock
      model: claude-sonnet-4
edges:
  - from: START
    to: summarize
  - from: summarize
    to: END
`

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// useMock swaps the provider registry for one holding only the given mock
// and disables history for the duration of the test.
func useMock(t *testing.T, mock *llmtest.MockProvider) {
	t.Helper()
	origRegistry := newProviderRegistry
	newProviderRegistry = func(_ *config.WorkflowConfig) (*llm.Registry, error) {
		reg := llm.NewRegistry()
		reg.Register(mock)
		return reg, nil
	}
	t.Cleanup(func() { newProviderRegistry = origRegistry })
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunHappyPath(t *testing.T) {
	mock := llmtest.NewMockProvider(llmtest.Response{Content: `{"summary": "short and sweet"}`})
	useMock(t, mock)

	path := writeWorkflow(t, summarizeWorkflow)
	stdout, _, err := execute(t, path, "-i", "topic=go schedulers", "--no-history")
	require.NoError(t, err)

	assert.Contains(t, stdout, "[OK] summarize")
	assert.Contains(t, stdout, "short and sweet")
	assert.Equal(t, 1, mock.Calls())
}

func TestRunInvalidWorkflowExitCode(t *testing.T) {
	broken := `schema_version: "1.0"
flow:
  name: broken
state:
  fields:
    topic:
      type: str
nodes:
  - id: n1
    prompt: "hello"
    output_schema:
      type: object
      fields:
        - name: answer
          type: str
    outputs: [answer]
edges:
  - from: START
    to: n1
  - from: n1
    to: END
`
	path := writeWorkflow(t, broken)
	_, stderr, err := execute(t, path, "--no-history")
	require.Error(t, err)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidWorkflow, exitErr.Code)
	assert.Contains(t, stderr, "error at")
}

func TestRunMissingFileExitCode(t *testing.T) {
	_, _, err := execute(t, filepath.Join(t.TempDir(), "nope.yaml"), "--no-history")
	require.Error(t, err)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidWorkflow, exitErr.Code)
}

func TestRunMissingInputExitCode(t *testing.T) {
	mock := llmtest.NewMockProvider(llmtest.Response{Content: `{"summary": "x"}`})
	useMock(t, mock)

	path := writeWorkflow(t, summarizeWorkflow)
	_, _, err := execute(t, path, "--no-interactive", "--no-history")
	require.Error(t, err)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitMissingInput, exitErr.Code)
	assert.Contains(t, exitErr.Message, "topic")
	assert.Equal(t, 0, mock.Calls())
}

func TestRunNodeFailureExitCode(t *testing.T) {
	// Schema-invalid on every attempt, so retries exhaust
	mock := llmtest.NewMockProvider(llmtest.Response{Content: `not json`})
	useMock(t, mock)

	path := writeWorkflow(t, summarizeWorkflow)
	stdout, _, err := execute(t, path, "-i", "topic=caching", "--no-history")
	require.Error(t, err)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitExecutionFailed, exitErr.Code)
	assert.Contains(t, stdout, "[FAIL] summarize")
}

func TestRunJSONOutput(t *testing.T) {
	mock := llmtest.NewMockProvider(llmtest.Response{Content: `{"summary": "done"}`})
	useMock(t, mock)
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	path := writeWorkflow(t, summarizeWorkflow)
	stdout, _, err := execute(t, path, "-i", "topic=queues", "--no-history")
	require.NoError(t, err)

	var resp struct {
		Version string `json:"@version"`
		Command string `json:"command"`
		Success bool   `json:"success"`
		RunID   string `json:"run_id"`
		Nodes   []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"nodes"`
		State map[string]interface{} `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))

	assert.Equal(t, "run", resp.Command)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Nodes, 1)
	assert.Equal(t, "SUCCEEDED", resp.Nodes[0].Status)
	assert.Equal(t, "done", resp.State["summary"])
}

func TestRunWritesOutputFile(t *testing.T) {
	mock := llmtest.NewMockProvider(llmtest.Response{Content: `{"summary": "persisted"}`})
	useMock(t, mock)

	path := writeWorkflow(t, summarizeWorkflow)
	outPath := filepath.Join(t.TempDir(), "state.json")
	_, _, err := execute(t, path, "-i", "topic=files", "-o", outPath, "--no-history")
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, "persisted", state["summary"])
	assert.Equal(t, "files", state["topic"])
}

func TestRunInputFileStdin(t *testing.T) {
	mock := llmtest.NewMockProvider(llmtest.Response{Content: `{"summary": "from stdin"}`})
	useMock(t, mock)

	path := writeWorkflow(t, summarizeWorkflow)

	cmd := NewCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewBufferString(`{"topic": "pipes"}`))
	cmd.SetArgs([]string{path, "--input-file", "-", "--no-history"})
	cmd.SetContext(context.Background())
	require.NoError(t, cmd.Execute())

	require.Equal(t, 1, mock.Calls())
	assert.Contains(t, mock.Requests[0].Messages[0].Content, "pipes")
}

func TestRunVerboseFailureDetail(t *testing.T) {
	// Schema-invalid on every attempt, so retries exhaust
	mock := llmtest.NewMockProvider(llmtest.Response{Content: `not json`})
	useMock(t, mock)
	shared.SetVerboseForTest(true)
	t.Cleanup(func() { shared.SetVerboseForTest(false) })

	path := writeWorkflow(t, summarizeWorkflow)
	stdout, _, err := execute(t, path, "-i", "topic=caching", "--no-history")
	require.Error(t, err)

	assert.Contains(t, stdout, "Error chain:")
	assert.Contains(t, stdout, "State at failure:")
	assert.Contains(t, stdout, `"topic": "caching"`)
}

func TestRunJSONIncludesWarnings(t *testing.T) {
	mock := llmtest.NewMockProvider(llmtest.Response{Content: `{"summary": "done"}`})
	useMock(t, mock)
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	gated := summarizeWorkflow + `optimization:
  strategy: bootstrap
`
	path := writeWorkflow(t, gated)
	stdout, _, err := execute(t, path, "-i", "topic=queues", "--no-history")
	require.NoError(t, err)

	var resp struct {
		Success  bool `json:"success"`
		Warnings []struct {
			Path    string `json:"path"`
			Feature string `json:"feature"`
		} `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "optimization", resp.Warnings[0].Path)
}

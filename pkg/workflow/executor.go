package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ensemble-run/ensemble/internal/log"
	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/errors"
	"github.com/ensemble-run/ensemble/pkg/llm"
	"github.com/ensemble-run/ensemble/pkg/observability"
	"github.com/ensemble-run/ensemble/pkg/tools"
	"github.com/ensemble-run/ensemble/pkg/workflow/outputschema"
)

// NodeStatus is the lifecycle state of a node execution.
type NodeStatus string

const (
	// NodeStatusPending indicates the node has not started yet.
	NodeStatusPending NodeStatus = "PENDING"
	// NodeStatusRunning indicates the node is currently executing.
	NodeStatusRunning NodeStatus = "RUNNING"
	// NodeStatusSucceeded indicates the node completed and wrote its outputs.
	NodeStatusSucceeded NodeStatus = "SUCCEEDED"
	// NodeStatusFailedRetryable indicates a failed attempt that will be retried
	// with a clarified prompt.
	NodeStatusFailedRetryable NodeStatus = "FAILED_RETRYABLE"
	// NodeStatusFailedFatal indicates a terminal failure that aborts the run.
	NodeStatusFailedFatal NodeStatus = "FAILED_FATAL"
)

// Execution limit defaults, used when the config's global.execution section
// leaves them unset.
const (
	DefaultNodeTimeout = 120 * time.Second
	DefaultRunTimeout  = 10 * time.Minute
	DefaultMaxRetries  = 2
)

// NodeResult records the outcome of one node execution.
type NodeResult struct {
	// NodeID is the executed node
	NodeID string

	// Status is the terminal status (SUCCEEDED or FAILED_FATAL)
	Status NodeStatus

	// Attempts is the number of LLM calls made, including retries
	Attempts int

	// Output holds the parsed, schema-valid response on success
	Output map[string]interface{}

	// Error is the failure message for failed nodes
	Error string

	// StartedAt and Duration bound the node execution
	StartedAt time.Time
	Duration  time.Duration

	// Usage is the aggregate token consumption across attempts
	Usage llm.TokenUsage

	// CostUSD is the estimated spend across attempts
	CostUSD float64
}

// RunResult is the outcome of a workflow run.
type RunResult struct {
	// RunID uniquely identifies this run
	RunID string

	// Workflow is the flow name
	Workflow string

	// Nodes are per-node results in execution order, including the failed
	// node when the run aborts
	Nodes []NodeResult

	// State is the final state snapshot
	State map[string]interface{}

	// StartedAt and Duration bound the whole run
	StartedAt time.Time
	Duration  time.Duration
}

// Usage returns aggregate token consumption across all nodes.
func (r *RunResult) Usage() llm.TokenUsage {
	var total llm.TokenUsage
	for _, n := range r.Nodes {
		total.Add(n.Usage)
	}
	return total
}

// CostUSD returns the estimated spend across all nodes.
func (r *RunResult) CostUSD() float64 {
	var total float64
	for _, n := range r.Nodes {
		total += n.CostUSD
	}
	return total
}

// Runner executes validated workflow configs node by node.
type Runner struct {
	providers *llm.Registry
	tools     tools.Registry
	sink      observability.Sink
	validator outputschema.Validator
	logger    *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithProviders sets the LLM provider registry.
func WithProviders(reg *llm.Registry) RunnerOption {
	return func(r *Runner) { r.providers = reg }
}

// WithTools sets the tool registry advertised to nodes.
func WithTools(reg tools.Registry) RunnerOption {
	return func(r *Runner) { r.tools = reg }
}

// WithSink sets the telemetry sink. Sink traffic is best-effort and never
// affects run outcome.
func WithSink(sink observability.Sink) RunnerOption {
	return func(r *Runner) { r.sink = sink }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a workflow runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		providers: llm.NewRegistry(),
		sink:      observability.NewNoopSink(),
		validator: outputschema.NewValidator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the workflow with the given inputs. The returned error is
// non-nil when the run aborted; the RunResult is populated either way with
// whatever progress was made.
func (r *Runner) Run(ctx context.Context, cfg *config.WorkflowConfig, inputs map[string]interface{}) (*RunResult, error) {
	plan, err := BuildPlan(cfg)
	if err != nil {
		return nil, err
	}

	state, err := NewState(cfg.State, inputs)
	if err != nil {
		return nil, err
	}

	exec := executionLimits(cfg)
	runID := uuid.NewString()
	result := &RunResult{
		RunID:     runID,
		Workflow:  cfg.Flow.Name,
		StartedAt: time.Now(),
	}

	logger := log.WithRunContext(r.logger, runID, cfg.Flow.Name)
	logger.Info("run starting", "nodes", len(plan.Nodes))

	runCtx, cancel := context.WithTimeout(ctx, exec.runTimeout)
	defer cancel()

	r.sink.StartRun(runCtx, observability.RunInfo{
		RunID:      runID,
		Workflow:   cfg.Flow.Name,
		Experiment: experimentName(cfg),
		Start:      result.StartedAt,
	})

	var runErr error
	for _, node := range plan.Nodes {
		nodeResult := r.executeNode(runCtx, cfg, node, state, runID, exec, logger)
		result.Nodes = append(result.Nodes, nodeResult)

		if nodeResult.Status != NodeStatusSucceeded {
			runErr = fmt.Errorf("node %s failed: %s", node.ID, nodeResult.Error)
			break
		}
	}

	result.State = state.Snapshot()
	result.Duration = time.Since(result.StartedAt)
	r.sink.EndRun(runCtx, runID, runErr)

	if runErr != nil {
		logger.Error("run failed", log.Error(runErr),
			log.Duration(log.DurationKey, result.Duration.Milliseconds()))
	} else {
		logger.Info("run succeeded",
			log.Duration(log.DurationKey, result.Duration.Milliseconds()))
	}
	return result, runErr
}

type limits struct {
	nodeTimeout time.Duration
	runTimeout  time.Duration
	maxRetries  int
}

func executionLimits(cfg *config.WorkflowConfig) limits {
	l := limits{
		nodeTimeout: DefaultNodeTimeout,
		runTimeout:  DefaultRunTimeout,
		maxRetries:  DefaultMaxRetries,
	}
	if cfg.Global == nil || cfg.Global.Execution == nil {
		return l
	}
	e := cfg.Global.Execution
	if e.NodeTimeout > 0 {
		l.nodeTimeout = time.Duration(e.NodeTimeout) * time.Second
	}
	if e.RunTimeout > 0 {
		l.runTimeout = time.Duration(e.RunTimeout) * time.Second
	}
	if e.MaxRetries > 0 {
		l.maxRetries = e.MaxRetries
	}
	return l
}

func experimentName(cfg *config.WorkflowConfig) string {
	if cfg.Global != nil && cfg.Global.Observability != nil {
		return cfg.Global.Observability.Experiment
	}
	return ""
}

func logArtifacts(cfg *config.WorkflowConfig) bool {
	return cfg.Global != nil && cfg.Global.Observability != nil && cfg.Global.Observability.LogArtifacts
}

// executeNode drives one node through the attempt loop: render the prompt,
// call the provider, parse and validate the response, and retry with an
// escalated clarification when the response misses the schema. The returned
// result is always terminal (SUCCEEDED or FAILED_FATAL).
//
// The result is a named return so the deferred telemetry record observes
// the terminal status and the measured duration reaches the caller.
func (r *Runner) executeNode(ctx context.Context, cfg *config.WorkflowConfig, node config.NodeConfig, state *State, runID string, exec limits, logger *slog.Logger) (result NodeResult) {
	result = NodeResult{
		NodeID:    node.ID,
		Status:    NodeStatusRunning,
		StartedAt: time.Now(),
	}
	nodeLogger := logger.With(log.NodeIDKey, node.ID)
	nodeLogger.Debug("node starting")

	var lastPrompt, lastResponse string
	defer func() {
		result.Duration = time.Since(result.StartedAt)
		if logArtifacts(cfg) {
			r.recordNode(ctx, runID, result, lastPrompt, lastResponse)
		} else {
			r.recordNode(ctx, runID, result, "", "")
		}
	}()

	llmCfg := nodeLLMConfig(cfg, node)
	provider, err := r.providers.Get(llmCfg.Provider)
	if err != nil {
		return failFatal(result, err)
	}

	// A tool reference that slipped past validation (or a registry that
	// changed since) is fatal before any provider call is made.
	if r.tools != nil {
		for _, tool := range node.Tools {
			if !r.tools.Has(tool) {
				return failFatal(result, &errors.NotFoundError{Resource: "tool", ID: tool})
			}
		}
	}

	basePrompt, err := RenderPrompt(node, state)
	if err != nil {
		return failFatal(result, err)
	}

	var lastErr error
	maxAttempts := exec.maxRetries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result.Attempts = attempt + 1
		prompt := outputschema.BuildPromptWithSchema(basePrompt, node.OutputSchema, attempt)
		lastPrompt = prompt
		result.Status = NodeStatusRunning
		log.Trace(nodeLogger, "prompt rendered", log.String("prompt", prompt))

		resp, err := r.complete(ctx, provider, llmCfg, node, prompt, runID, exec.nodeTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.As(err, new(*errors.TimeoutError)) {
				return failFatal(result, err)
			}
			lastErr = err
			result.Status = NodeStatusFailedRetryable
			nodeLogger.Warn("provider call failed, retrying",
				log.Int(log.AttemptKey, attempt), log.Error(err))
			continue
		}

		result.Usage.Add(resp.Usage)
		result.CostUSD += llm.EstimateCost(responseModel(resp, llmCfg), resp.Usage)
		lastResponse = resp.Content

		parsed, err := outputschema.ExtractJSON(resp.Content)
		if err == nil {
			err = r.validator.Validate(node.OutputSchema, parsed)
		}
		if err != nil {
			lastErr = err
			result.Status = NodeStatusFailedRetryable
			nodeLogger.Warn("response failed schema validation, retrying",
				log.Int(log.AttemptKey, attempt), log.Error(err))
			continue
		}

		for _, name := range node.Outputs {
			if err := state.Set(name, parsed[name]); err != nil {
				return failFatal(result, err)
			}
		}

		result.Status = NodeStatusSucceeded
		result.Output = parsed
		nodeLogger.Info("node succeeded",
			log.Int(log.AttemptKey, attempt),
			log.Duration(log.DurationKey, time.Since(result.StartedAt).Milliseconds()))
		return result
	}

	result.Status = NodeStatusFailedFatal
	result.Error = fmt.Sprintf("exhausted %d attempts: %v", maxAttempts, lastErr)
	nodeLogger.Error("node failed", log.Error(lastErr))
	return result
}

func failFatal(result NodeResult, err error) NodeResult {
	result.Status = NodeStatusFailedFatal
	result.Error = err.Error()
	return result
}

// complete issues one LLM call under the node timeout.
func (r *Runner) complete(ctx context.Context, provider llm.Provider, llmCfg *config.LLMConfig, node config.NodeConfig, prompt, runID string, timeout time.Duration) (*llm.CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.MessageRoleUser, Content: prompt},
		},
		Model:       llmCfg.Model,
		Temperature: llmCfg.Temperature,
		MaxTokens:   llmCfg.MaxTokens,
		Metadata: map[string]string{
			"run_id":  runID,
			"node_id": node.ID,
		},
	}
	if len(node.Tools) > 0 {
		req.Metadata["tools"] = strings.Join(node.Tools, ",")
	}

	resp, err := provider.Complete(callCtx, req)
	if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, &errors.TimeoutError{
			Operation: "node " + node.ID,
			Duration:  timeout,
			Cause:     err,
		}
	}
	return resp, err
}

// nodeLLMConfig layers the node's LLM override on the global defaults.
func nodeLLMConfig(cfg *config.WorkflowConfig, node config.NodeConfig) *config.LLMConfig {
	var global *config.LLMConfig
	if cfg.Global != nil {
		global = cfg.Global.LLM
	}
	merged := node.LLM.Merge(global)
	if merged == nil {
		merged = &config.LLMConfig{}
	}
	return merged
}

func responseModel(resp *llm.CompletionResponse, llmCfg *config.LLMConfig) string {
	if resp.Model != "" {
		return resp.Model
	}
	return llmCfg.Model
}

// recordNode ships the node record to the telemetry sink. Best-effort only.
func (r *Runner) recordNode(ctx context.Context, runID string, result NodeResult, prompt, response string) {
	r.sink.RecordNode(ctx, observability.NodeRecord{
		RunID:    runID,
		NodeID:   result.NodeID,
		Status:   string(result.Status),
		Attempts: result.Attempts,
		Start:    result.StartedAt,
		Duration: result.Duration,
		Usage:    result.Usage,
		CostUSD:  result.CostUSD,
		Prompt:   prompt,
		Response: response,
		Error:    result.Error,
	})
}

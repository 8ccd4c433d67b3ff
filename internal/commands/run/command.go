// Package run implements the ensemble run command.
package run

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ensemble-run/ensemble/internal/commands/shared"
	"github.com/ensemble-run/ensemble/internal/history"
	"github.com/ensemble-run/ensemble/internal/output"
	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/llm/providers"
	"github.com/ensemble-run/ensemble/pkg/observability"
	"github.com/ensemble-run/ensemble/pkg/tools"
	"github.com/ensemble-run/ensemble/pkg/workflow"
)

// Indirections for tests: swap in a mock registry or an in-memory history
// store without touching the environment.
var (
	newProviderRegistry = providers.NewRegistryFromEnv
	openHistory         = func() (*history.Store, error) {
		path, err := history.DefaultPath()
		if err != nil {
			return nil, err
		}
		return history.Open(path)
	}
)

const sinkShutdownTimeout = 5 * time.Second

type runOptions struct {
	inputs        []string
	inputFile     string
	outputFile    string
	noInteractive bool
	noHistory     bool
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow",
		Long: `Run validates a workflow config, seeds the run state from the given
inputs, and executes the nodes in edge order. Each node renders its prompt
from state, calls its LLM provider, and writes the schema-validated response
back into state.

Inputs:
  --input, -i         key=value pairs; values are coerced to the declared
                      state field types
  --input-file        JSON object of inputs ('-' reads stdin)

Missing required inputs are prompted for when stdin is a terminal;
otherwise the run exits with code 3.

Providers are configured from the environment:
  ANTHROPIC_API_KEY   enables the anthropic provider
  OPENAI_API_KEY      enables the openai provider
  ollama              always available (local server, no key)

A workflow can point a provider at a different variable via llm.api_key_env.
Tools the deployment offers are declared via ENSEMBLE_TOOLS (comma-separated
names); a workflow referencing an undeclared tool fails validation.`,
		Example: `  # Run with inline inputs
  ensemble run workflow.yaml -i topic="go schedulers" -i max_words=250

  # Read inputs from a file
  ensemble run workflow.yaml --input-file inputs.json

  # Pipe inputs and capture the final state
  echo '{"topic": "caching"}' | ensemble run workflow.yaml --input-file - -o state.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Workflow input in key=value format (repeatable)")
	cmd.Flags().StringVar(&opts.inputFile, "input-file", "", "JSON file with inputs (use '-' for stdin)")
	cmd.Flags().StringVarP(&opts.outputFile, "output", "o", "", "Write the final state JSON to a file")
	cmd.Flags().BoolVar(&opts.noInteractive, "no-interactive", false, "Disable interactive prompts for missing inputs")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Skip recording this run in the local history")

	return cmd
}

func runWorkflow(cmd *cobra.Command, path string, opts runOptions) error {
	useJSON := shared.GetJSON()
	quiet := shared.GetQuiet()

	cfg, err := config.Load(path)
	if err != nil {
		return shared.NewInvalidWorkflowError("failed to load workflow", err)
	}

	toolRegistry := tools.FromEnv()

	result := config.NewValidator(config.WithTools(toolRegistry)).Validate(cfg)
	if !result.Valid() {
		for _, v := range result.Violations {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: error at %s: %s\n", path, v.Path, v.Message)
			if v.Suggestion != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "  Suggestion: %s\n", v.Suggestion)
			}
		}
		return shared.NewInvalidWorkflowError(
			fmt.Sprintf("%d validation error(s)", len(result.Violations)), nil)
	}

	if !quiet && !useJSON {
		for _, w := range result.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w.String())
		}
	}

	inputs, err := collectInputs(opts.inputs, opts.inputFile, cmd.InOrStdin())
	if err != nil {
		return shared.NewMissingInputError(err.Error(), err)
	}

	if missing := missingRequired(cfg, inputs); len(missing) > 0 {
		if opts.noInteractive || useJSON || shared.IsNonInteractive() {
			return shared.NewMissingInputError(
				fmt.Sprintf("missing required inputs: %v (pass them with --input or --input-file)", missing), nil)
		}
		prompted, err := promptForInputs(cfg, missing, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return shared.NewMissingInputError(err.Error(), err)
		}
		for k, v := range prompted {
			inputs[k] = v
		}
	}

	registry, err := newProviderRegistry(cfg)
	if err != nil {
		return shared.NewExecutionError("configuring providers", err)
	}

	sink := buildSink(cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkShutdownTimeout)
		defer cancel()
		if err := sink.Shutdown(ctx); err != nil {
			slog.Debug("telemetry sink shutdown", "error", err.Error())
		}
	}()

	runner := workflow.NewRunner(
		workflow.WithProviders(registry),
		workflow.WithTools(toolRegistry),
		workflow.WithSink(sink),
		workflow.WithLogger(slog.Default()),
	)

	runResult, runErr := runner.Run(cmd.Context(), cfg, inputs)
	if runResult == nil {
		return shared.NewExecutionError("run failed", runErr)
	}

	if !opts.noHistory {
		recordHistory(cmd.Context(), runResult, runErr)
	}

	if opts.outputFile != "" {
		if err := writeStateFile(opts.outputFile, runResult.State); err != nil {
			return shared.NewExecutionError("writing output file", err)
		}
	}

	if useJSON {
		emitRunJSON(cmd, runResult, result.Warnings, runErr)
	} else if !quiet {
		printRunSummary(cmd, runResult, runErr)
	}

	if runErr != nil {
		return &shared.ExitError{Code: shared.ExitExecutionFailed, Message: runErr.Error(), Cause: runErr}
	}
	return nil
}

// buildSink constructs the telemetry sink from the workflow's observability
// config. Sink failures never abort a run: a broken exporter degrades to the
// no-op sink with a warning.
func buildSink(cfg *config.WorkflowConfig) observability.Sink {
	var obsCfg *config.ObservabilityConfig
	if cfg.Global != nil {
		obsCfg = cfg.Global.Observability
	}

	inner, err := observability.NewSink(obsCfg)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err.Error())
		return observability.NewNoopSink()
	}
	return observability.NewAsyncSink(inner, slog.Default())
}

func recordHistory(ctx context.Context, result *workflow.RunResult, runErr error) {
	store, err := openHistory()
	if err != nil {
		slog.Debug("run history unavailable", "error", err.Error())
		return
	}
	defer store.Close()

	if err := store.RecordRun(ctx, result, runErr); err != nil {
		slog.Debug("recording run history", "error", err.Error())
	}
}

func writeStateFile(path string, state map[string]interface{}) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func printRunSummary(cmd *cobra.Command, result *workflow.RunResult, runErr error) {
	for _, node := range result.Nodes {
		marker := "[OK]"
		if node.Status != workflow.NodeStatusSucceeded {
			marker = "[FAIL]"
		}
		cmd.Printf("%s %s (%d attempt(s), %s)\n", marker, node.NodeID, node.Attempts, node.Duration.Round(time.Millisecond))
		if node.Error != "" {
			cmd.Printf("     %s\n", node.Error)
		}
	}

	usage := result.Usage()
	cmd.Printf("\nRun %s: %d tokens (%d in / %d out), $%.4f, %s\n",
		result.RunID, usage.TotalTokens, usage.InputTokens, usage.OutputTokens,
		result.CostUSD(), result.Duration.Round(time.Millisecond))

	switch {
	case runErr == nil:
		cmd.Println("\nFinal state:")
		printStateJSON(cmd, result.State)
	case shared.GetVerbose():
		// Verbose failures get the full cause chain and the state as it
		// stood when the run aborted.
		cmd.Println("\nError chain:")
		for err := runErr; err != nil; err = stderrors.Unwrap(err) {
			cmd.Printf("  %s\n", err.Error())
		}
		cmd.Println("\nState at failure:")
		printStateJSON(cmd, result.State)
	}
}

func printStateJSON(cmd *cobra.Command, state map[string]interface{}) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err == nil {
		cmd.Println(string(data))
	}
}

func emitRunJSON(cmd *cobra.Command, result *workflow.RunResult, warns []config.Warning, runErr error) {
	type nodeJSON struct {
		ID         string  `json:"id"`
		Status     string  `json:"status"`
		Attempts   int     `json:"attempts"`
		DurationMS int64   `json:"duration_ms"`
		Tokens     int     `json:"tokens"`
		CostUSD    float64 `json:"cost_usd"`
		Error      string  `json:"error,omitempty"`
	}

	type usageJSON struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	}

	type runResponse struct {
		output.JSONResponse
		RunID      string                 `json:"run_id"`
		Workflow   string                 `json:"workflow"`
		DurationMS int64                  `json:"duration_ms"`
		Nodes      []nodeJSON             `json:"nodes"`
		State      map[string]interface{} `json:"state"`
		Usage      usageJSON              `json:"usage"`
		CostUSD    float64                `json:"cost_usd"`
		Warnings   []output.JSONWarning   `json:"warnings,omitempty"`
		Error      string                 `json:"error,omitempty"`
	}

	nodes := make([]nodeJSON, 0, len(result.Nodes))
	for _, n := range result.Nodes {
		nodes = append(nodes, nodeJSON{
			ID:         n.NodeID,
			Status:     string(n.Status),
			Attempts:   n.Attempts,
			DurationMS: n.Duration.Milliseconds(),
			Tokens:     n.Usage.TotalTokens,
			CostUSD:    n.CostUSD,
			Error:      n.Error,
		})
	}

	usage := result.Usage()
	resp := runResponse{
		JSONResponse: output.JSONResponse{
			Version: output.EnvelopeVersion,
			Command: "run",
			Success: runErr == nil,
		},
		RunID:      result.RunID,
		Workflow:   result.Workflow,
		DurationMS: result.Duration.Milliseconds(),
		Nodes:      nodes,
		State:      result.State,
		Usage: usageJSON{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			TotalTokens:  usage.TotalTokens,
		},
		CostUSD: result.CostUSD(),
	}
	for _, w := range warns {
		resp.Warnings = append(resp.Warnings, output.JSONWarning{
			Path:    w.Path,
			Feature: string(w.Feature),
			Message: w.Message,
		})
	}
	if runErr != nil {
		resp.Error = runErr.Error()
	}

	output.EmitJSON(cmd.OutOrStdout(), resp)
}

// Package validate implements the ensemble validate command.
package validate

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ensemble-run/ensemble/internal/commands/shared"
	"github.com/ensemble-run/ensemble/internal/output"
	"github.com/ensemble-run/ensemble/pkg/config"
	"github.com/ensemble-run/ensemble/pkg/tools"
)

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Validate a workflow config without running it",
		Long: `Validate checks that a workflow config parses and satisfies all
structural rules: state field declarations, node output contracts, prompt
placeholders, and the edge graph. All violations are reported in a single
pass, each with a path and a suggestion.

Features the config declares but this runtime does not execute
(optimization blocks, conditional edges) are reported as warnings, never
silently dropped.

See also: ensemble run`,
		Example: `  # Basic validation
  ensemble validate workflow.yaml

  # Machine-readable output for CI
  ensemble validate workflow.yaml --json

  # Re-validate on every save while editing
  ensemble validate workflow.yaml --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return watchValidate(cmd, args[0])
			}
			return runValidate(cmd, args[0])
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-validate whenever the file changes")

	return cmd
}

func runValidate(cmd *cobra.Command, path string) error {
	useJSON := shared.GetJSON()

	cfg, err := config.Load(path)
	if err != nil {
		if useJSON {
			output.EmitJSONError(cmd.OutOrStdout(), "validate", []output.JSONError{{
				Code:       shared.ErrorCode(err),
				Message:    err.Error(),
				Suggestion: "Check that the file exists and contains valid YAML or JSON",
			}})
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: ""}
		}
		return shared.NewInvalidWorkflowError("failed to load workflow", err)
	}

	result := config.NewValidator(config.WithTools(tools.FromEnv())).Validate(cfg)

	if !result.Valid() {
		if useJSON {
			errs := make([]output.JSONError, 0, len(result.Violations))
			for _, v := range result.Violations {
				errs = append(errs, output.JSONError{
					Code:       shared.ErrorCodeSchemaViolation,
					Message:    v.Message,
					Path:       v.Path,
					Suggestion: v.Suggestion,
				})
			}
			output.EmitJSONError(cmd.OutOrStdout(), "validate", errs)
			return &shared.ExitError{Code: shared.ExitExecutionFailed, Message: ""}
		}

		for _, v := range result.Violations {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: error at %s: %s\n", path, v.Path, v.Message)
			if v.Suggestion != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "  Suggestion: %s\n", v.Suggestion)
			}
		}
		return shared.NewExecutionError(
			fmt.Sprintf("%d validation error(s)", len(result.Violations)), nil)
	}

	if useJSON {
		return emitSuccess(cmd, cfg, result)
	}

	cmd.Println("Validation Results:")
	cmd.Println("  [OK] Syntax valid")
	cmd.Println("  [OK] State schema valid")
	cmd.Println("  [OK] Node output contracts valid")
	cmd.Println("  [OK] Edge graph valid")

	if len(result.Warnings) > 0 {
		cmd.Println("\nWarnings:")
		for _, w := range result.Warnings {
			cmd.Printf("  ! %s\n", w.String())
		}
	}
	return nil
}

func emitSuccess(cmd *cobra.Command, cfg *config.WorkflowConfig, result *config.Result) error {
	type workflowMetadata struct {
		Name        string   `json:"name"`
		Nodes       int      `json:"nodes"`
		StateFields []string `json:"state_fields"`
	}

	type validateResponse struct {
		output.JSONResponse
		Workflow workflowMetadata     `json:"workflow"`
		Warnings []output.JSONWarning `json:"warnings,omitempty"`
	}

	fields := make([]string, 0, len(cfg.State.Fields))
	for name := range cfg.State.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	warnings := make([]output.JSONWarning, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, output.JSONWarning{
			Path:    w.Path,
			Feature: string(w.Feature),
			Message: w.Message,
		})
	}

	return output.EmitJSON(cmd.OutOrStdout(), validateResponse{
		JSONResponse: output.JSONResponse{
			Version: output.EnvelopeVersion,
			Command: "validate",
			Success: true,
		},
		Workflow: workflowMetadata{
			Name:        cfg.Flow.Name,
			Nodes:       len(cfg.Nodes),
			StateFields: fields,
		},
		Warnings: warnings,
	})
}

// fileExists reports whether the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ensemble-run/ensemble/internal/commands/examples"
	"github.com/ensemble-run/ensemble/internal/commands/run"
	"github.com/ensemble-run/ensemble/internal/commands/runs"
	"github.com/ensemble-run/ensemble/internal/commands/shared"
	"github.com/ensemble-run/ensemble/internal/commands/validate"
	"github.com/ensemble-run/ensemble/internal/commands/version"
	"github.com/ensemble-run/ensemble/internal/log"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for ensemble
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensemble",
		Short: "ensemble - declarative LLM workflow runner",
		Long: `Ensemble executes declarative LLM workflows. A workflow is a YAML or
JSON config describing typed state, prompt nodes with output contracts,
and the edges connecting them. Each node renders its prompt from state,
calls its provider, validates the structured response, and writes the
result back into state.

Run 'ensemble validate <workflow>' to check a config.
Run 'ensemble run <workflow>' to execute it.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// --verbose overrides the env-derived log level so one flag
			// surfaces the per-node debug detail.
			if shared.GetVerbose() {
				cfg := log.FromEnv()
				cfg.Level = "debug"
				slog.SetDefault(log.New(cfg))
			}
		},
	}

	verbose, quiet, jsonOut := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(jsonOut, "json", false, "Output in JSON format")

	cmd.AddCommand(
		run.NewCommand(),
		validate.NewCommand(),
		runs.NewCommand(),
		examples.NewCommand(),
		version.NewCommand(),
	)
	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}

// Package examples implements the ensemble examples command.
package examples

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ensemble-run/ensemble/internal/commands/shared"
	"github.com/ensemble-run/ensemble/internal/examples"
	"github.com/ensemble-run/ensemble/internal/output"
)

// NewCommand creates the examples command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples",
		Short: "List the built-in example workflows",
		Long: `Examples lists the workflow configs embedded in the binary. Use
'examples show' to print one, or 'examples copy' to write it to a file
as a starting point for your own workflow.`,
		Example: `  ensemble examples
  ensemble examples show summarize
  ensemble examples copy summarize my-workflow.yaml
  ensemble run my-workflow.yaml -i topic="go schedulers"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listExamples(cmd)
		},
	}

	cmd.AddCommand(newShowCommand(), newCopyCommand())

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "show <name>",
		Short:         "Print an example workflow config",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := examples.Get(args[0])
			if err != nil {
				return shared.NewExecutionError(fmt.Sprintf("example %q not found", args[0]), err)
			}
			cmd.Print(string(content))
			return nil
		},
	}
}

func newCopyCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "copy <name> <dest>",
		Short:         "Write an example workflow config to a file",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := examples.CopyTo(args[0], args[1]); err != nil {
				return shared.NewExecutionError("copying example", err)
			}
			cmd.Printf("Wrote %s\n", args[1])
			return nil
		},
	}
}

func listExamples(cmd *cobra.Command) error {
	list, err := examples.List()
	if err != nil {
		return shared.NewExecutionError("listing examples", err)
	}

	if shared.GetJSON() {
		type exampleJSON struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		type listResponse struct {
			output.JSONResponse
			Examples []exampleJSON `json:"examples"`
		}

		out := make([]exampleJSON, 0, len(list))
		for _, ex := range list {
			out = append(out, exampleJSON{Name: ex.Name, Description: ex.Description})
		}
		return output.EmitJSON(cmd.OutOrStdout(), listResponse{
			JSONResponse: output.JSONResponse{
				Version: output.EnvelopeVersion,
				Command: "examples",
				Success: true,
			},
			Examples: out,
		})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, ex := range list {
		fmt.Fprintf(w, "%s\t%s\n", ex.Name, ex.Description)
	}
	return w.Flush()
}

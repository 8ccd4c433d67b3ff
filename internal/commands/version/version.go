// Package version implements the ensemble version command.
package version

import (
	"github.com/spf13/cobra"

	"github.com/ensemble-run/ensemble/internal/commands/shared"
	"github.com/ensemble-run/ensemble/internal/output"
)

// Info contains build-time version metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// NewCommand creates the version command
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, c, b := shared.GetVersion()
	info := Info{Version: v, Commit: c, BuildDate: b}

	if shared.GetJSON() {
		type versionResponse struct {
			output.JSONResponse
			Build Info `json:"build"`
		}
		return output.EmitJSON(cmd.OutOrStdout(), versionResponse{
			JSONResponse: output.JSONResponse{
				Version: output.EnvelopeVersion,
				Command: "version",
				Success: true,
			},
			Build: info,
		})
	}

	cmd.Printf("ensemble version %s\n", info.Version)
	cmd.Printf("  commit:     %s\n", info.Commit)
	cmd.Printf("  build date: %s\n", info.BuildDate)
	return nil
}

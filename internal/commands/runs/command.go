// Package runs implements the ensemble runs command for browsing the local
// run history.
package runs

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ensemble-run/ensemble/internal/commands/shared"
	"github.com/ensemble-run/ensemble/internal/history"
	"github.com/ensemble-run/ensemble/internal/output"
	"github.com/ensemble-run/ensemble/pkg/errors"
)

// openStore is swapped for an in-memory store in tests.
var openStore = func() (*history.Store, error) {
	path, err := history.DefaultPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

// NewCommand creates the runs command
func NewCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent workflow runs",
		Long: `Runs lists recent workflow runs from the local history database,
newest first. The database lives at ~/.ensemble/history.db by default;
set ENSEMBLE_HISTORY to use a different path.`,
		Example: `  # Last 20 runs
  ensemble runs

  # Last 5 runs, machine-readable
  ensemble runs --limit 5 --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(cmd, limit)
		},
	}

	cmd.AddCommand(newShowCommand())
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its per-node results",
		Example: `  ensemble runs show 8f4a1c2e-...
  ensemble runs show 8f4a1c2e-... --json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showRun(cmd, args[0])
		},
	}
}

func listRuns(cmd *cobra.Command, limit int) error {
	store, err := openStore()
	if err != nil {
		return shared.NewExecutionError("opening run history", err)
	}
	defer store.Close()

	summaries, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return shared.NewExecutionError("listing runs", err)
	}

	if shared.GetJSON() {
		return emitRunsJSON(cmd, summaries)
	}

	if len(summaries) == 0 {
		cmd.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tWORKFLOW\tSTATUS\tSTARTED\tDURATION\tTOKENS\tCOST")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t$%.4f\n",
			shortID(s.RunID), s.Workflow, s.Status,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Duration.Round(time.Millisecond),
			s.InputTokens+s.OutputTokens, s.CostUSD)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, runID string) error {
	store, err := openStore()
	if err != nil {
		return shared.NewExecutionError("opening run history", err)
	}
	defer store.Close()

	run, nodes, err := store.GetRun(cmd.Context(), runID)
	if err != nil {
		var notFound *errors.NotFoundError
		if errors.As(err, &notFound) {
			return shared.NewExecutionError(fmt.Sprintf("run %s not found", runID), err)
		}
		return shared.NewExecutionError("loading run", err)
	}

	if shared.GetJSON() {
		return emitRunJSON(cmd, run, nodes)
	}

	cmd.Printf("Run %s\n", run.RunID)
	cmd.Printf("  Workflow: %s\n", run.Workflow)
	cmd.Printf("  Status:   %s\n", run.Status)
	if run.Error != "" {
		cmd.Printf("  Error:    %s\n", run.Error)
	}
	cmd.Printf("  Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
	cmd.Printf("  Duration: %s\n", run.Duration.Round(time.Millisecond))
	cmd.Printf("  Tokens:   %d in / %d out\n", run.InputTokens, run.OutputTokens)
	cmd.Printf("  Cost:     $%.4f\n", run.CostUSD)

	if len(nodes) > 0 {
		cmd.Println("\nNodes:")
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  NODE\tSTATUS\tATTEMPTS\tDURATION\tCOST")
		for _, n := range nodes {
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t$%.4f\n",
				n.NodeID, n.Status, n.Attempts, n.Duration.Round(time.Millisecond), n.CostUSD)
		}
		w.Flush()
	}
	return nil
}

type runJSON struct {
	RunID        string  `json:"run_id"`
	Workflow     string  `json:"workflow"`
	Status       string  `json:"status"`
	Error        string  `json:"error,omitempty"`
	StartedAt    string  `json:"started_at"`
	DurationMS   int64   `json:"duration_ms"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

func toRunJSON(s history.RunSummary) runJSON {
	return runJSON{
		RunID:        s.RunID,
		Workflow:     s.Workflow,
		Status:       s.Status,
		Error:        s.Error,
		StartedAt:    s.StartedAt.UTC().Format(time.RFC3339),
		DurationMS:   s.Duration.Milliseconds(),
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		CostUSD:      s.CostUSD,
	}
}

func emitRunsJSON(cmd *cobra.Command, summaries []history.RunSummary) error {
	type listResponse struct {
		output.JSONResponse
		Runs []runJSON `json:"runs"`
	}

	runs := make([]runJSON, 0, len(summaries))
	for _, s := range summaries {
		runs = append(runs, toRunJSON(s))
	}

	return output.EmitJSON(cmd.OutOrStdout(), listResponse{
		JSONResponse: output.JSONResponse{
			Version: output.EnvelopeVersion,
			Command: "runs",
			Success: true,
		},
		Runs: runs,
	})
}

func emitRunJSON(cmd *cobra.Command, run *history.RunSummary, nodes []history.NodeSummary) error {
	type nodeJSON struct {
		NodeID     string  `json:"node_id"`
		Status     string  `json:"status"`
		Attempts   int     `json:"attempts"`
		Error      string  `json:"error,omitempty"`
		DurationMS int64   `json:"duration_ms"`
		CostUSD    float64 `json:"cost_usd"`
	}

	type showResponse struct {
		output.JSONResponse
		Run   runJSON    `json:"run"`
		Nodes []nodeJSON `json:"nodes"`
	}

	out := make([]nodeJSON, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeJSON{
			NodeID:     n.NodeID,
			Status:     n.Status,
			Attempts:   n.Attempts,
			Error:      n.Error,
			DurationMS: n.Duration.Milliseconds(),
			CostUSD:    n.CostUSD,
		})
	}

	return output.EmitJSON(cmd.OutOrStdout(), showResponse{
		JSONResponse: output.JSONResponse{
			Version: output.EnvelopeVersion,
			Command: "runs",
			Success: true,
		},
		Run:   toRunJSON(*run),
		Nodes: out,
	})
}

// shortID trims a UUID to its first segment for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

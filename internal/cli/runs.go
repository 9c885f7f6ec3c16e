package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// runsFlags holds the flag values for the runs command.
type runsFlags struct {
	TraceDir string
	Limit    int
	JSON     bool
}

// newRunsCmd creates the "w3rt runs" command.
func newRunsCmd() *cobra.Command {
	var flags runsFlags

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Example: `  # Last 20 runs
  w3rt runs

  # Everything, as JSON
  w3rt runs --limit 0 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.TraceDir, "trace-dir", "", "Trace directory (default: runtime.trace_dir from config)")
	cmd.Flags().IntVar(&flags.Limit, "limit", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output as JSON")

	return cmd
}

func init() {
	rootCmd.AddCommand(newRunsCmd())
}

// runRuns is the command's RunE function.
func runRuns(cmd *cobra.Command, flags runsFlags) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}
	store := openTraceStore(resolved, flags.TraceDir)

	report, err := store.GenerateAuditReport(cmd.Context(), 0, 0)
	if err != nil {
		return err
	}

	runs := report.Runs
	if flags.Limit > 0 && len(runs) > flags.Limit {
		runs = runs[:flags.Limit]
	}

	if flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	stderr := cmd.ErrOrStderr()
	if len(runs) == 0 {
		fmt.Fprintf(stderr, "No runs recorded under %s\n", store.Base())
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(stderr, "%s  %s  %-24s  %s\n",
			r.RunID, statusLabel(r.Status), truncate(r.Workflow, 24), formatRunTime(r.StartedTS))
	}
	if flags.Limit > 0 && report.TotalRuns > flags.Limit {
		fmt.Fprintf(stderr, "\n%d of %d runs shown (use --limit 0 for all)\n", len(runs), report.TotalRuns)
	}
	return nil
}

// statusLabel colors a run status for terminal output. Padding happens
// before styling so escape codes do not throw off column alignment.
func statusLabel(status string) string {
	padded := fmt.Sprintf("%-10s", status)
	switch status {
	case "ok":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(padded)
	case "failed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(padded)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render(padded)
	}
}

// formatRunTime renders a millisecond timestamp for humans; zero means the
// trace never recorded a start.
func formatRunTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

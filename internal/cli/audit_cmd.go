package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/trace"
)

// auditFlags holds the flag values for the audit command.
type auditFlags struct {
	TraceDir string
	From     int64
	To       int64
	JSON     bool
}

// newAuditCmd creates the "w3rt audit" command.
func newAuditCmd() *cobra.Command {
	var flags auditFlags

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Summarize recorded runs and their transactions",
		Long: `Build an audit report over every recorded run: per-run outcome, the
chains touched, and each submitted transaction correlated with its
confirmation. Timestamps are Unix milliseconds; zero bounds leave the
window open on that side.`,
		Example: `  # Everything ever recorded
  w3rt audit

  # One day, as JSON for downstream tooling
  w3rt audit --from 1756080000000 --to 1756166400000 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.TraceDir, "trace-dir", "", "Trace directory (default: runtime.trace_dir from config)")
	cmd.Flags().Int64Var(&flags.From, "from", 0, "Only runs started at or after this timestamp (Unix ms)")
	cmd.Flags().Int64Var(&flags.To, "to", 0, "Only runs started at or before this timestamp (Unix ms)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output as JSON")

	return cmd
}

func init() {
	rootCmd.AddCommand(newAuditCmd())
}

// runAudit is the command's RunE function.
func runAudit(cmd *cobra.Command, flags auditFlags) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}
	store := openTraceStore(resolved, flags.TraceDir)

	report, err := store.GenerateAuditReport(cmd.Context(), flags.From, flags.To)
	if err != nil {
		return err
	}

	if flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	renderAuditReport(cmd, report)
	return nil
}

// renderAuditReport prints the human-readable report to stderr.
func renderAuditReport(cmd *cobra.Command, report *trace.AuditReport) {
	stderr := cmd.ErrOrStderr()
	headerStyle := lipgloss.NewStyle().Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	fmt.Fprintf(stderr, "%s\n", headerStyle.Render("Audit report"))
	if report.FromTS > 0 || report.ToTS > 0 {
		fmt.Fprintf(stderr, "  window: %s .. %s\n", formatBound(report.FromTS), formatBound(report.ToTS))
	}
	fmt.Fprintf(stderr, "  runs: %d total, %d ok, %d failed, %d incomplete\n",
		report.TotalRuns, report.Succeeded, report.Failed, report.Incomplete)
	if len(report.Chains) > 0 {
		fmt.Fprintf(stderr, "  chains: %s\n", strings.Join(report.Chains, ", "))
	}

	for _, r := range report.Runs {
		fmt.Fprintf(stderr, "\n%s  %s", r.RunID, statusLabel(r.Status))
		if r.Workflow != "" {
			fmt.Fprintf(stderr, "  %s", r.Workflow)
		}
		fmt.Fprintln(stderr)
		if r.Error != "" {
			fmt.Fprintf(stderr, "    error: %s\n", r.Error)
		}
		for _, tx := range r.Transactions {
			state := "submitted"
			if tx.Confirmed {
				state = "confirmed"
			}
			fmt.Fprintf(stderr, "    tx %s  %s  %s\n", truncate(tx.Signature, 20), tx.Chain, state)
		}
	}

	if len(report.ReadErrors) > 0 {
		fmt.Fprintf(stderr, "\n%s\n", dimStyle.Render(fmt.Sprintf("%d trace(s) could not be read:", len(report.ReadErrors))))
		for _, re := range report.ReadErrors {
			fmt.Fprintf(stderr, "  %s\n", re)
		}
	}
}

// formatBound renders one side of the audit window; zero means open.
func formatBound(ms int64) string {
	if ms == 0 {
		return "open"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

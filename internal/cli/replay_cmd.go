package cli

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// replayFlags holds the flag values for the replay command.
type replayFlags struct {
	TraceDir string
	JSON     bool
}

// newReplayCmd creates the "w3rt replay" command.
func newReplayCmd() *cobra.Command {
	var flags replayFlags

	cmd := &cobra.Command{
		Use:   "replay RUN_ID",
		Short: "Validate a recorded run's trace and artifacts",
		Long: `Re-check a recorded run without executing anything: the event stream
must be well-formed (one start, one finish, unique ids, increasing
timestamps) and every referenced artifact must still hash to the
sha256 the trace recorded for it. Exits non-zero when any check fails.`,
		Example: `  w3rt replay 20250824-101500.000-ab12cd34`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.TraceDir, "trace-dir", "", "Trace directory (default: runtime.trace_dir from config)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output as JSON")

	return cmd
}

func init() {
	rootCmd.AddCommand(newReplayCmd())
}

// runReplay is the command's RunE function.
func runReplay(cmd *cobra.Command, args []string, flags replayFlags) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}
	store := openTraceStore(resolved, flags.TraceDir)

	report, err := store.Replay(args[0])
	if err != nil {
		return err
	}

	if flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return encErr
		}
	} else {
		stderr := cmd.ErrOrStderr()
		if report.OK {
			okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
			fmt.Fprintf(stderr, "%s %s (%d events, %d artifacts)\n",
				okStyle.Render("OK:"), report.RunID, report.Events, report.Artifacts)
			return nil
		}
		failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
		fmt.Fprintf(stderr, "%s %s (%d events, %d artifacts)\n",
			failStyle.Render("FAILED:"), report.RunID, report.Events, report.Artifacts)
		for _, issue := range report.Issues {
			fmt.Fprintf(stderr, "  - %s\n", issue)
		}
	}

	if !report.OK {
		return fmt.Errorf("replay of %s found %d issue(s)", report.RunID, len(report.Issues))
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/trace"
)

// eventsFlags holds the flag values for the events command.
type eventsFlags struct {
	TraceDir string
	Run      string
	Types    string
	Chain    string
	Tool     string
	Since    int64
	Until    int64
	Limit    int
	JSON     bool
}

// newEventsCmd creates the "w3rt events" command.
func newEventsCmd() *cobra.Command {
	var flags eventsFlags

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query trace events across runs",
		Long: `Query the append-only trace across all recorded runs. Filters combine
with AND; an unfiltered query walks every run, newest first.`,
		Example: `  # Every transaction submitted on solana today (ms timestamps)
  w3rt events --type tx.submitted --chain solana --since 1756080000000

  # One run's policy decisions, as JSON
  w3rt events --run 20250824-101500.000-ab12cd34 --type policy.decision --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.TraceDir, "trace-dir", "", "Trace directory (default: runtime.trace_dir from config)")
	cmd.Flags().StringVar(&flags.Run, "run", "", "Only events from this run")
	cmd.Flags().StringVar(&flags.Types, "type", "", "Only these event types (comma-separated)")
	cmd.Flags().StringVar(&flags.Chain, "chain", "", "Only events tagged with this chain")
	cmd.Flags().StringVar(&flags.Tool, "tool", "", "Only events tagged with this tool")
	cmd.Flags().Int64Var(&flags.Since, "since", 0, "Only events at or after this timestamp (Unix ms)")
	cmd.Flags().Int64Var(&flags.Until, "until", 0, "Only events at or before this timestamp (Unix ms)")
	cmd.Flags().IntVar(&flags.Limit, "limit", 0, "Maximum events to return (0 for all)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output as JSON")

	return cmd
}

func init() {
	rootCmd.AddCommand(newEventsCmd())
}

// runEvents is the command's RunE function.
func runEvents(cmd *cobra.Command, flags eventsFlags) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}
	store := openTraceStore(resolved, flags.TraceDir)

	filter := trace.Filter{
		RunID: flags.Run,
		Chain: flags.Chain,
		Tool:  flags.Tool,
		Since: flags.Since,
		Until: flags.Until,
		Limit: flags.Limit,
	}
	if flags.Types != "" {
		for _, t := range strings.Split(flags.Types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, t)
			}
		}
	}

	events, err := store.QueryEvents(filter)
	if err != nil {
		return err
	}

	if flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	stderr := cmd.ErrOrStderr()
	if len(events) == 0 {
		fmt.Fprintln(stderr, "No matching events")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(stderr, "%s  %-18s  %s%s\n",
			time.UnixMilli(e.TS).Local().Format("2006-01-02 15:04:05.000"),
			e.Type, e.RunID, eventDetail(&e))
	}
	fmt.Fprintf(stderr, "\n%d event(s)\n", len(events))
	return nil
}

// eventDetail builds the trailing detail column from whichever identifying
// fields the event carries.
func eventDetail(e *trace.Event) string {
	var parts []string
	if e.StepID != "" {
		parts = append(parts, "step="+e.StepID)
	}
	if e.Tool != "" {
		parts = append(parts, "tool="+e.Tool)
	}
	if e.Chain != "" {
		parts = append(parts, "chain="+e.Chain)
	}
	if len(parts) == 0 {
		return ""
	}
	return "  " + strings.Join(parts, " ")
}

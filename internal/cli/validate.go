package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/plan"
)

// newValidateCmd creates the "w3rt validate" command.
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate WORKFLOW",
		Short: "Validate a workflow's dependency graph",
		Long: `Validate a workflow in DAG form: unique action ids, resolvable
dependencies, an acyclic graph, and the swap-execution preconditions
(a quote dependency and the exact confirmation literal).

Exits 0 and prints "OK: <name> (<n> actions)" when the workflow is valid;
exits non-zero with a single-line reason otherwise.`,
		Example: `  # Validate a workflow file
  w3rt validate workflow.json`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newValidateCmd())
}

// runValidate is the command's RunE function.
func runValidate(cmd *cobra.Command, args []string) error {
	w, err := plan.LoadWorkflow(args[0])
	if err != nil {
		return err
	}
	if err := plan.Validate(w); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (%d actions)\n", w.Name, len(w.Actions))
	return nil
}

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/plan"
)

// newExplainCmd creates the "w3rt explain" command.
func newExplainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain WORKFLOW",
		Short: "Show a workflow's source actions and its compiled plan",
		Long: `Compile a workflow in DAG form and print both sides: the actions as
written and the plan steps the compiler produced, in execution order.
Steps the compiler added (simulations injected before unguarded swap
executions) are tagged (injected).`,
		Example: `  # Explain what the compiler does to a workflow
  w3rt explain workflow.json`,
		Args: cobra.ExactArgs(1),
		RunE: runExplain,
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newExplainCmd())
}

// runExplain is the command's RunE function.
func runExplain(cmd *cobra.Command, args []string) error {
	w, err := plan.LoadWorkflow(args[0])
	if err != nil {
		return err
	}
	p, err := plan.Compile(w, nil)
	if err != nil {
		return err
	}

	injected := make(map[string]bool)
	for _, id := range plan.InjectedIDs(w, p) {
		injected[id] = true
	}

	sectionStyle := lipgloss.NewStyle().Bold(true)
	injectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, sectionStyle.Render(fmt.Sprintf("Workflow: %s", w.Name)))
	fmt.Fprintln(out)

	fmt.Fprintln(out, sectionStyle.Render(fmt.Sprintf("Source actions (%d):", len(w.Actions))))
	for i, a := range w.Actions {
		fmt.Fprintf(out, "  %2d. %-24s %s%s\n", i+1, a.ID, a.Tool, dependsSuffix(a.DependsOn))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, sectionStyle.Render(fmt.Sprintf("Compiled steps (%d):", len(p.Steps))))
	for i, s := range p.Steps {
		tag := ""
		if injected[s.ID] {
			tag = " " + injectedStyle.Render("(injected)")
		}
		fmt.Fprintf(out, "  %2d. %-24s %s%s%s\n", i+1, s.ID, s.Tool, tag, dependsSuffix(s.DependsOn))
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Plan hash: %s\n", p.Meta.PlanHash)
	return nil
}

// dependsSuffix formats a dependency list as a trailing annotation, empty for
// actions with no dependencies.
func dependsSuffix(deps []string) string {
	if len(deps) == 0 {
		return ""
	}
	return fmt.Sprintf("  [depends: %s]", strings.Join(deps, ", "))
}

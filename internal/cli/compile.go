package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/plan"
	"github.com/w3rt/w3rt/internal/policy"
)

// compileFlags holds the flag values for the compile command.
type compileFlags struct {
	Out    string // --out PLAN.json, empty means stdout
	Policy string // --policy POLICY.json to embed in plan meta
}

// newCompileCmd creates the "w3rt compile" command.
func newCompileCmd() *cobra.Command {
	var flags compileFlags

	cmd := &cobra.Command{
		Use:   "compile WORKFLOW",
		Short: "Compile a workflow into a content-addressed plan",
		Long: `Validate a workflow in DAG form, inject missing safety simulations,
and emit the compiled plan as JSON. The plan carries meta.planHash, a
canonical digest of its contents; compiling the same workflow always
yields the same hash regardless of key order in the source file.

With --policy, the policy document is embedded verbatim in meta.policy
together with its own canonical digest in meta.policyHash.`,
		Example: `  # Compile to stdout
  w3rt compile workflow.json

  # Compile to a file with an attached policy
  w3rt compile workflow.json --out plan.json --policy policy.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Out, "out", "", "Write the plan to a file instead of stdout")
	cmd.Flags().StringVar(&flags.Policy, "policy", "", "Policy document to embed in the plan meta")

	return cmd
}

func init() {
	rootCmd.AddCommand(newCompileCmd())
}

// runCompile is the command's RunE function.
func runCompile(cmd *cobra.Command, args []string, flags compileFlags) error {
	w, err := plan.LoadWorkflow(args[0])
	if err != nil {
		return err
	}

	var policyDoc map[string]any
	if flags.Policy != "" {
		policyDoc, err = policy.Document(flags.Policy)
		if err != nil {
			return err
		}
	}

	p, err := plan.Compile(w, policyDoc)
	if err != nil {
		return err
	}

	data, err := p.Encode()
	if err != nil {
		return err
	}

	if flags.Out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(flags.Out, data, 0o600); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote plan %s to %s (%d steps, %s)\n",
		p.Workflow, flags.Out, len(p.Steps), p.Meta.PlanHash)
	return nil
}

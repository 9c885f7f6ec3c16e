package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/plan"
)

// newVerifyCmd creates the "w3rt verify" command.
func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify PLAN ARTIFACT",
		Short: "Verify that an execution artifact matches a plan",
		Long: `Recompute the plan's canonical digest and require that both the plan's
own meta.planHash and the artifact's planHash equal it. When both sides
carry a policyHash, those must agree as well.

Exits 0 when the artifact genuinely attests this plan; exits non-zero
with a single-line reason on any mismatch.`,
		Example: `  # Verify a run artifact against the plan it claims to attest
  w3rt verify plan.json artifact.json`,
		Args: cobra.ExactArgs(2),
		RunE: runVerify,
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

// runVerify is the command's RunE function.
func runVerify(cmd *cobra.Command, args []string) error {
	p, err := plan.LoadPlan(args[0])
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	att, err := plan.ParseAttestation(data)
	if err != nil {
		return err
	}

	if err := plan.Verify(p, att); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (%s)\n", p.Workflow, p.Meta.PlanHash)
	return nil
}

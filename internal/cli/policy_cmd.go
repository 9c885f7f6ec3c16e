package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/policy"
)

// newPolicyCmd creates the "w3rt policy" command group.
func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and evaluate policy documents",
	}
	cmd.AddCommand(newPolicyEvalCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newPolicyCmd())
}

// policyEvalFlags holds the flag values for the policy eval command.
type policyEvalFlags struct {
	Policy  string
	Context string
	JSON    bool
}

// newPolicyEvalCmd creates the "w3rt policy eval" command.
func newPolicyEvalCmd() *cobra.Command {
	var flags policyEvalFlags

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a policy against a call context",
		Long: `Evaluate the policy document against a call context supplied as JSON
and print the decision. The same decision engine gates live runs, so
this answers "what would happen" without touching anything.

The command exits zero whenever evaluation succeeds; the decision kind
(allow, warn, confirm, block) is the answer, not the exit code.`,
		Example: `  # What does the policy say about this swap?
  echo '{"chain":"solana","network":"mainnet","action":"swap_execute",
         "sideEffect":"broadcast","amountSol":0.5,"simulationOk":true}' |
    w3rt policy eval --context -

  w3rt policy eval --context call.json --policy policy.json --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyEval(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Policy, "policy", "", "Policy document path (default: runtime.policy from config)")
	cmd.Flags().StringVar(&flags.Context, "context", "", "Call context JSON file (\"-\" for stdin)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output the decision as JSON")
	_ = cmd.MarkFlagRequired("context")

	return cmd
}

// runPolicyEval is the command's RunE function.
func runPolicyEval(cmd *cobra.Command, flags policyEvalFlags) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}

	path := flags.Policy
	if path == "" {
		path = resolved.Config.Runtime.Policy
	}
	cfg, err := policy.LoadConfig(path)
	if err != nil {
		return err
	}

	call, err := readCallContext(cmd, flags.Context)
	if err != nil {
		return err
	}

	d := policy.Decide(cfg, call)

	if flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	renderDecision(cmd, d)
	return nil
}

// readCallContext loads the call context JSON from a file or stdin.
func readCallContext(cmd *cobra.Command, path string) (*policy.CallContext, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read call context: %w", err)
	}

	var call policy.CallContext
	if err := json.Unmarshal(data, &call); err != nil {
		return nil, fmt.Errorf("parse call context: %w", err)
	}
	return &call, nil
}

// renderDecision prints the human-readable decision to stderr.
func renderDecision(cmd *cobra.Command, d policy.Decision) {
	stderr := cmd.ErrOrStderr()

	var style lipgloss.Style
	switch d.Kind {
	case policy.KindAllow:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	case policy.KindWarn:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	case policy.KindConfirm:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	default:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	}

	fmt.Fprintf(stderr, "%s", style.Render(strings.ToUpper(d.Kind)))
	if d.Code != "" {
		fmt.Fprintf(stderr, " [%s]", d.Code)
	}
	if d.Message != "" {
		fmt.Fprintf(stderr, " %s", d.Message)
	}
	fmt.Fprintln(stderr)
	for _, reason := range d.Reasons {
		fmt.Fprintf(stderr, "  - %s\n", reason)
	}
	if d.ConfirmationKey != "" {
		fmt.Fprintf(stderr, "  confirm with: %s\n", d.ConfirmationKey)
	}
}

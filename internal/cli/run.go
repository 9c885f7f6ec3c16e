package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/config"
	"github.com/w3rt/w3rt/internal/logging"
	"github.com/w3rt/w3rt/internal/policy"
	"github.com/w3rt/w3rt/internal/runctx"
	"github.com/w3rt/w3rt/internal/tool"
	"github.com/w3rt/w3rt/internal/workflow"
)

// runFlags holds the flag values for the run command.
type runFlags struct {
	Policy   string   // --policy overrides the config's policy document path
	TraceDir string   // --trace-dir overrides the config's trace directory
	Params   []string // --param k=v entries seeding the initial run context
	Network  string   // --network names the target network for policy checks
	Yes      bool     // --yes auto-approves approvals and confirmations
	JSON     bool     // --json emits the run result as JSON on stdout
}

// runOutput is the JSON output type for the run command.
type runOutput struct {
	OK      bool           `json:"ok"`
	RunID   string         `json:"runId"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// newRunCmd creates the "w3rt run" command.
func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run WORKFLOW",
		Short: "Execute a staged workflow under policy and approval gates",
		Long: `Execute a staged workflow document (YAML or JSON) against the sandbox
tool set. Every event is appended to the trace, every broadcast-tagged
tool call is checked against the policy document first, and approval
stages pause for a decision.

Policy decisions of kind "confirm" and approval stages prompt on the
terminal; --yes approves them all, which is the only way to run
non-interactively. A policy "block" always terminates the run.`,
		Example: `  # Run the starter swap workflow interactively
  w3rt run workflows/sandbox-swap.yaml

  # Non-interactive run with parameters and JSON output
  w3rt run workflows/price-watch.yaml --param mode=live --yes --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Policy, "policy", "", "Policy document path (default: runtime.policy from config)")
	cmd.Flags().StringVar(&flags.TraceDir, "trace-dir", "", "Trace directory (default: runtime.trace_dir from config)")
	cmd.Flags().StringArrayVar(&flags.Params, "param", nil, "Initial context entry as key=value (repeatable; value parsed as JSON when possible)")
	cmd.Flags().StringVar(&flags.Network, "network", "sandbox", "Target network for policy evaluation")
	cmd.Flags().BoolVar(&flags.Yes, "yes", false, "Approve all prompts without asking")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output the run result as JSON to stdout")

	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

// runRun is the command's RunE function.
func runRun(cmd *cobra.Command, args []string, flags runFlags) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}

	doc, err := workflow.LoadFile(args[0])
	if err != nil {
		return err
	}

	if netCfg, ok := resolved.Config.Networks[flags.Network]; ok && !netCfg.Enabled {
		return fmt.Errorf("network %q is disabled in config; enable it in %s first", flags.Network, config.ConfigFileName)
	}

	initial, err := parseParamFlags(flags.Params)
	if err != nil {
		return err
	}

	store := openTraceStore(resolved, flags.TraceDir)
	registry := sandboxRegistry()
	stderr := cmd.ErrOrStderr()

	callbacks := progressCallbacks(stderr)
	opts := []workflow.Option{
		workflow.WithTrace(store),
		workflow.WithLogger(logging.New("run")),
		workflow.WithApprovalHandler(approvalHandler(stderr, flags.Yes)),
	}

	checker, ledger, err := buildPolicyChecker(resolved, flags, stderr)
	if err != nil {
		return err
	}
	if checker != nil {
		opts = append(opts, workflow.WithPolicyChecker(checker))
		callbacks = recordBroadcasts(callbacks, registry, ledger, flags.Network)
	}
	opts = append(opts, workflow.WithStageCallbacks(callbacks))

	engine := workflow.New(registry, opts...)

	// Interrupt cancels between actions; a tool call already in flight
	// finishes first so the trace never ends mid-event.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, runErr := engine.Run(ctx, doc, initial)

	if flags.JSON {
		out := runOutput{OK: result.OK, RunID: result.RunID, Context: result.Context}
		if result.Err != nil {
			out.Error = result.Err.Error()
			out.Code = result.Err.Code
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			return encErr
		}
		return runErr
	}

	fmt.Fprintln(stderr)
	if result.OK {
		okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
		fmt.Fprintf(stderr, "%s run %s\n", okStyle.Render("Finished:"), result.RunID)
	}
	fmt.Fprintf(stderr, "Trace: %s\n", store.TracePath(result.RunID))
	return runErr
}

// parseParamFlags turns repeated key=value flags into the initial run
// context. Values that parse as JSON keep their type; everything else stays
// a string, so --param mode=live and --param amount=5 both do what they look
// like.
func parseParamFlags(params []string) (map[string]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(params))
	for _, p := range params {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

// approvalHandler returns the engine's approval hook: auto-approve under
// --yes, otherwise an interactive confirmation on the terminal.
func approvalHandler(stderr io.Writer, autoApprove bool) workflow.ApprovalHandler {
	return func(_ context.Context, stage *workflow.Stage, _ *runctx.Map) (bool, error) {
		if autoApprove {
			fmt.Fprintf(stderr, "    auto-approved (--yes)\n")
			return true, nil
		}
		return confirmPrompt(
			fmt.Sprintf("Approve stage %q?", stage.Name),
			"The run pauses here until you decide. Rejecting terminates the run.",
		)
	}
}

// buildPolicyChecker loads the policy document and returns the engine's
// policy hook together with the broadcast ledger that feeds the rate gates.
// An explicit --policy path must load; the config's default path may be
// absent, in which case broadcasts run ungated and a warning says so.
func buildPolicyChecker(resolved *config.ResolvedConfig, flags runFlags, stderr io.Writer) (workflow.PolicyChecker, *policy.Ledger, error) {
	path := flags.Policy
	explicit := path != ""
	if !explicit {
		path = resolved.Config.Runtime.Policy
	}

	cfg, err := policy.LoadConfig(path)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
		logging.New("run").Warn("no policy document found; broadcast tools run ungated", "path", path)
		return nil, nil, nil
	}

	ledger := policy.NewLedger()
	network := flags.Network
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	checker := func(_ context.Context, tl tool.Tool, params map[string]any, rc *runctx.Map) (workflow.PolicyVerdict, error) {
		meta := tl.Meta()
		call := policy.ContextFromCall(meta.Chain, network, meta.Action, meta.SideEffect, params, rc)
		ledger.Fill(call, ledgerScope(meta.Chain, network))

		d := policy.Decide(cfg, call)
		verdict := workflow.PolicyVerdict{Decision: d}

		switch d.Kind {
		case policy.KindWarn:
			verdict.Allowed = true
			verdict.Reason = d.Message
			fmt.Fprintf(stderr, "    %s %s\n", warnStyle.Render("policy warning:"), d.Message)
		case policy.KindConfirm:
			approved := flags.Yes
			if flags.Yes {
				fmt.Fprintf(stderr, "    policy confirmation %q auto-approved (--yes)\n", d.Code)
			} else {
				var promptErr error
				approved, promptErr = confirmPrompt(
					fmt.Sprintf("Policy requires confirmation: %s", d.Message),
					fmt.Sprintf("%s [%s]", strings.Join(d.Reasons, "; "), d.Code),
				)
				if promptErr != nil {
					return workflow.PolicyVerdict{}, promptErr
				}
			}
			verdict.Allowed = approved
			if !approved {
				verdict.Reason = d.Message
			}
		case policy.KindBlock:
			verdict.Reason = d.Message
		default: // KindAllow
			verdict.Allowed = true
		}
		return verdict, nil
	}
	return checker, ledger, nil
}

// progressCallbacks prints per-stage progress to stderr.
func progressCallbacks(stderr io.Writer) workflow.StageCallbacks {
	stageStyle := lipgloss.NewStyle().Bold(true)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	return workflow.StageCallbacks{
		OnStageStart: func(stage *workflow.Stage) {
			fmt.Fprintf(stderr, "%s\n", stageStyle.Render(fmt.Sprintf("Stage %s (%s)", stage.Name, stage.Type)))
		},
		OnActionEnd: func(_ *workflow.Stage, action *workflow.Action, _ any, err error) {
			if err != nil {
				fmt.Fprintf(stderr, "    %s %s: %v\n", failStyle.Render("failed"), action.Tool, err)
				return
			}
			fmt.Fprintf(stderr, "    %s %s\n", okStyle.Render("ok"), action.Tool)
		},
	}
}

// recordBroadcasts wraps callbacks so every successful broadcast-tagged tool
// call lands in the ledger behind the cooldown and rate-limit gates. This
// hangs off the action-end hook because only it knows the call actually went
// out.
func recordBroadcasts(cb workflow.StageCallbacks, registry *tool.Registry, ledger *policy.Ledger, network string) workflow.StageCallbacks {
	inner := cb.OnActionEnd
	cb.OnActionEnd = func(stage *workflow.Stage, action *workflow.Action, result any, err error) {
		if err == nil {
			if tl, getErr := registry.Get(action.Tool); getErr == nil && tl.Meta().SideEffect == tool.SideEffectBroadcast {
				ledger.RecordBroadcast(ledgerScope(tl.Meta().Chain, network))
			}
		}
		if inner != nil {
			inner(stage, action, result, err)
		}
	}
	return cb
}

// ledgerScope keys the broadcast ledger by chain and network, the same
// granularity the rate gates reason about.
func ledgerScope(chain, network string) string {
	return chain + "/" + network
}

// confirmPrompt shows an interactive yes/no form on the terminal. A user
// abort (ctrl+c) counts as rejection; any other form error is surfaced so
// non-interactive runs fail with a clear message instead of hanging.
func confirmPrompt(title, description string) (bool, error) {
	var approved bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(description).
			Affirmative("Approve").
			Negative("Reject").
			Value(&approved),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("interactive prompt unavailable: %w (re-run with --yes to auto-approve)", err)
	}
	return approved, nil
}

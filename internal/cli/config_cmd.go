package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/config"
)

// configCmd groups the configuration subcommands; bare "w3rt config" just
// shows their help.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Inspect, validate, and debug w3rt configuration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// configDebugCmd answers "which value won, and where did it come from" for
// every setting after defaults, file, env, and flags are merged.
var configDebugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Show resolved configuration with source annotations",
	Long: `Display the fully-resolved configuration showing each value and
the source where it came from (cli flag, environment variable, config file, or default).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, _, err := loadAndResolveConfig()
		if err != nil {
			return err
		}
		printResolvedConfig(cmd, resolved)
		return nil
	},
}

// configValidateCmd checks the resolved configuration. Warnings alone exit
// zero; errors exit non-zero so CI can gate on a broken config before any
// run starts.
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and report issues",
	Long:  "Check the configuration for errors and warnings.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, meta, err := loadAndResolveConfig()
		if err != nil {
			return err
		}
		result := config.Validate(resolved.Config, meta)
		printValidationResult(cmd, result)
		if result.HasErrors() {
			return fmt.Errorf("configuration has %d error(s)", len(result.Errors()))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configDebugCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

var (
	styleBanner   = lipgloss.NewStyle().Bold(true)
	styleSection  = lipgloss.NewStyle().Bold(true)
	styleErrorLbl = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleWarnLbl  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleSuccess  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// sourceStyle colors the per-value source tag: green for defaults, blue for
// the file, yellow for env, red for CLI overrides. The root PersistentPreRun
// drops the color profile to Ascii under --no-color, which strips all of
// these automatically.
func sourceStyle(src config.ConfigSource) lipgloss.Style {
	switch src {
	case config.SourceFile:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	case config.SourceEnv:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	case config.SourceCLI:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	}
}

// banner prints a bold title with an underline the same width.
func banner(out io.Writer, title string) {
	fmt.Fprintln(out, styleBanner.Render(title))
	fmt.Fprintln(out, strings.Repeat("=", len(title)))
	fmt.Fprintln(out)
}

const fieldWidth = 24

// printField writes one `key = value (source: ...)` line.
func printField(out io.Writer, name, value string, src config.ConfigSource) {
	tag := sourceStyle(src).Render(fmt.Sprintf("(source: %s)", src))
	fmt.Fprintf(out, "  %-*s = %-40s %s\n", fieldWidth, name, value, tag)
}

func printResolvedConfig(cmd *cobra.Command, rc *config.ResolvedConfig) {
	out := cmd.OutOrStdout()
	banner(out, "Configuration Debug")

	if rc.Path != "" {
		fmt.Fprintf(out, "Config file: %s\n", rc.Path)
	} else {
		fmt.Fprintln(out, "Config file: none found")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, styleSection.Render("[runtime]"))
	r := rc.Config.Runtime
	printField(out, "trace_dir", fmt.Sprintf("%q", r.TraceDir), rc.Sources["runtime.trace_dir"])
	printField(out, "workflows_dir", fmt.Sprintf("%q", r.WorkflowsDir), rc.Sources["runtime.workflows_dir"])
	printField(out, "policy", fmt.Sprintf("%q", r.Policy), rc.Sources["runtime.policy"])
	fmt.Fprintln(out)

	// Map iteration order would flap between invocations; sort the network
	// names so diffs of the output are meaningful.
	names := make([]string, 0, len(rc.Config.Networks))
	for n := range rc.Config.Networks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		network := rc.Config.Networks[name]
		src := rc.Sources["networks."+name]
		fmt.Fprintln(out, styleSection.Render(fmt.Sprintf("[networks.%s]", name)))
		printField(out, "rpc_url", fmt.Sprintf("%q", network.RPCURL), src)
		printField(out, "enabled", fmt.Sprintf("%t", network.Enabled), src)
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, styleSection.Render("[logging]"))
	l := rc.Config.Logging
	printField(out, "level", fmt.Sprintf("%q", l.Level), rc.Sources["logging.level"])
	printField(out, "format", fmt.Sprintf("%q", l.Format), rc.Sources["logging.format"])
}

func printValidationResult(cmd *cobra.Command, result *config.ValidationResult) {
	out := cmd.OutOrStdout()
	banner(out, "Configuration Validation")

	errs := result.Errors()
	warns := result.Warnings()

	if len(errs) == 0 && len(warns) == 0 {
		fmt.Fprintln(out, styleSuccess.Render("No issues found."))
		return
	}

	if len(errs) > 0 {
		fmt.Fprintln(out, styleErrorLbl.Render("Errors:"))
		for _, issue := range errs {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
		fmt.Fprintln(out)
	}
	if len(warns) > 0 {
		fmt.Fprintln(out, styleWarnLbl.Render("Warnings:"))
		for _, issue := range warns {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "%d error(s), %d warning(s)\n", len(errs), len(warns))
}

package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/w3rt/w3rt/internal/logging"
)

// Package-level flag targets shared by every subcommand.
var (
	flagVerbose bool
	flagQuiet   bool
	flagConfig  string
	flagDir     string
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "w3rt",
	Short: "Safety-gated workflow runner for blockchain side effects",
	Long: `w3rt compiles declarative workflows into content-addressed execution
plans and runs them under policy gates, human approval, and an append-only
trace. Nothing is broadcast to a chain unless the policy engine allows it,
and everything a run does is recorded for audit and replay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// When invoked with no subcommand, show help. Every real entry point is
	// an explicit subcommand; there is no implicit default action.
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: rootPreRun,
}

// rootPreRun wires up the process-wide knobs before any subcommand runs:
// environment fallbacks for flags the user left untouched, the logger, the
// color profile, and an optional working-directory switch.
func rootPreRun(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("verbose") && envSet("W3RT_VERBOSE") {
		flagVerbose = true
	}
	if !flags.Changed("quiet") && envSet("W3RT_QUIET") {
		flagQuiet = true
	}
	if !flags.Changed("no-color") && envSet("NO_COLOR", "W3RT_NO_COLOR") {
		flagNoColor = true
	}

	logging.Setup(flagVerbose, flagQuiet, os.Getenv("W3RT_LOG_FORMAT") == "json")

	if flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	if flagDir != "" {
		if err := os.Chdir(flagDir); err != nil {
			return fmt.Errorf("changing directory to %s: %w", flagDir, err)
		}
	}
	return nil
}

// envSet reports whether any of the named environment variables is non-empty.
func envSet(names ...string) bool {
	for _, name := range names {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// bindGlobalFlags registers the persistent flags shared by the real CLI and
// the generated command trees. Callers supply the storage, so the global
// rootCmd binds the package variables while NewRootCmd binds throwaway ones.
func bindGlobalFlags(fs *pflag.FlagSet, verbose, quiet, noColor *bool, cfgPath, dir *string) {
	fs.BoolVarP(verbose, "verbose", "v", false, "Verbose (debug) logging (env: W3RT_VERBOSE)")
	fs.BoolVarP(quiet, "quiet", "q", false, "Only log errors (env: W3RT_QUIET)")
	fs.StringVar(cfgPath, "config", "", "Path to w3rt.toml")
	fs.StringVar(dir, "dir", "", "Run as if started in this directory")
	fs.BoolVar(noColor, "no-color", false, "Plain output without colors (env: W3RT_NO_COLOR, NO_COLOR)")
}

func init() {
	bindGlobalFlags(rootCmd.PersistentFlags(), &flagVerbose, &flagQuiet, &flagNoColor, &flagConfig, &flagDir)
}

// Execute runs the CLI and maps the result to a process exit code. Errors are
// printed to os.Stderr here because cobra's own reporting is silenced.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// NewRootCmd builds a detached copy of the command tree for the completion
// and man page generators. The copy gets its own flag storage, so running a
// generator never mutates the package-level flag variables.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               rootCmd.Use,
		Short:             rootCmd.Short,
		Long:              rootCmd.Long,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: rootPreRun,
	}
	bindGlobalFlags(cmd.PersistentFlags(), new(bool), new(bool), new(bool), new(string), new(string))

	for _, child := range rootCmd.Commands() {
		cmd.AddCommand(child)
	}
	return cmd
}

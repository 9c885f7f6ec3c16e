package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// completionCmd emits a completion script for one shell on stdout. The
// script is cobra-generated, so it tracks the command surface automatically;
// regenerate after upgrading w3rt.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Write a shell completion script for w3rt to stdout.

Install by redirecting the output to wherever your shell loads
completions from:

  Bash:
    w3rt completion bash | sudo tee /etc/bash_completion.d/w3rt > /dev/null
    # Homebrew: w3rt completion bash > $(brew --prefix)/etc/bash_completion.d/w3rt

  Zsh (any directory on $fpath works):
    w3rt completion zsh > "${fpath[1]}/_w3rt"

  Fish:
    w3rt completion fish > ~/.config/fish/completions/w3rt.fish

  PowerShell:
    w3rt completion powershell > w3rt.ps1
    # then dot-source w3rt.ps1 from your profile`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		// OnlyValidArgs rejects anything else before RunE.
		return fmt.Errorf("unsupported shell: %s", args[0])
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/buildinfo"
)

var versionJSON bool

// versionCmd prints the metadata the build stamped into the binary. The
// output goes to stdout in both modes; version strings are answers meant for
// pipes, not log lines.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show w3rt version and build information",
	Long:  "Display the version, git commit, and build date of this w3rt binary.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.GetInfo()

		if versionJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return err
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output version info as JSON")
	rootCmd.AddCommand(versionCmd)
}

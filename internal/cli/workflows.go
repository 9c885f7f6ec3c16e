package cli

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/workflow"
)

// workflowsFlags holds the flag values for the workflows command.
type workflowsFlags struct {
	JSON bool
}

// workflowEntry is one discovered document in the JSON output.
type workflowEntry struct {
	Path    string `json:"path"`
	Name    string `json:"name,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Stages  int    `json:"stages,omitempty"`
	Error   string `json:"error,omitempty"`
}

// newWorkflowsCmd creates the "w3rt workflows" command.
func newWorkflowsCmd() *cobra.Command {
	var flags workflowsFlags

	cmd := &cobra.Command{
		Use:   "workflows [DIR]",
		Short: "List and schema-check workflow documents",
		Long: `Discover workflow documents (YAML or JSON) under a directory, any
depth, and schema-check each one. Exits non-zero when any document
fails its check, so this doubles as a CI gate.

Without a directory argument the configured workflows_dir is used.`,
		Example: `  w3rt workflows
  w3rt workflows ./deploy/workflows --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflows(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output as JSON")

	return cmd
}

func init() {
	rootCmd.AddCommand(newWorkflowsCmd())
}

// runWorkflows is the command's RunE function.
func runWorkflows(cmd *cobra.Command, args []string, flags workflowsFlags) error {
	resolved, _, err := loadAndResolveConfig()
	if err != nil {
		return err
	}

	dir := resolved.Config.Runtime.WorkflowsDir
	if len(args) == 1 {
		dir = args[0]
	}

	paths, err := workflow.Discover(dir)
	if err != nil {
		return err
	}

	entries := make([]workflowEntry, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		entry := workflowEntry{Path: path}
		doc, loadErr := workflow.LoadFile(path)
		if loadErr != nil {
			entry.Error = loadErr.Error()
			invalid++
		} else {
			entry.Name = doc.Name
			entry.Trigger = doc.Trigger
			entry.Stages = len(doc.Stages)
		}
		entries = append(entries, entry)
	}

	if flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(entries); encErr != nil {
			return encErr
		}
	} else {
		renderWorkflowEntries(cmd, dir, entries)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d workflow(s) failed schema checks", invalid, len(entries))
	}
	return nil
}

// renderWorkflowEntries prints the human-readable listing to stderr.
func renderWorkflowEntries(cmd *cobra.Command, dir string, entries []workflowEntry) {
	stderr := cmd.ErrOrStderr()
	if len(entries) == 0 {
		fmt.Fprintf(stderr, "No workflow documents under %s\n", dir)
		return
	}

	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	for _, e := range entries {
		if e.Error != "" {
			fmt.Fprintf(stderr, "%s  %s\n    %s\n", failStyle.Render("FAIL"), e.Path, e.Error)
			continue
		}
		fmt.Fprintf(stderr, "%s  %s  %s (%s, %d stages)\n",
			okStyle.Render("ok"), e.Path, e.Name, e.Trigger, e.Stages)
	}
}

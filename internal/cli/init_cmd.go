package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/config"
)

var (
	initFlagName  string
	initFlagForce bool
)

// initCmd scaffolds a project from an embedded template. It needs no
// existing w3rt.toml; the root pre-run only wires logging and flags, so a
// fresh directory works fine.
var initCmd = &cobra.Command{
	Use:   "init [template]",
	Short: "Initialize a new w3rt project from a template",
	Long: `Initialize a new w3rt project directory by rendering an embedded
project template. Existing files are preserved unless --force is supplied.

Examples:
  w3rt init                         # scaffold starter template in current directory
  w3rt init starter --name my-bot   # scaffold with explicit project name
  w3rt init starter --force         # overwrite existing files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initFlagName, "name", "n", "", "Project name (defaults to current directory name)")
	initCmd.Flags().BoolVar(&initFlagForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	templateName := "starter"
	if len(args) > 0 {
		templateName = args[0]
	}

	if !config.TemplateExists(templateName) {
		available, listErr := config.ListTemplates()
		if listErr != nil {
			return fmt.Errorf("listing available templates: %w", listErr)
		}
		return fmt.Errorf("template %q not found; available templates: %s",
			templateName, strings.Join(available, ", "))
	}

	// The destination is the working directory, after any --dir change from
	// the pre-run.
	destDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	projectName := initFlagName
	if projectName == "" {
		projectName = filepath.Base(destDir)
	}
	// The name lands in rendered files; never let it smuggle paths.
	if strings.Contains(projectName, "../") || strings.Contains(projectName, "..\\") {
		return fmt.Errorf("invalid project name %q: must not contain path traversal sequences", projectName)
	}

	cfgPath := filepath.Join(destDir, config.ConfigFileName)
	if _, statErr := os.Stat(cfgPath); statErr == nil && !initFlagForce {
		return fmt.Errorf("%s already exists in %s; use --force to overwrite", config.ConfigFileName, destDir)
	}

	created, err := config.RenderTemplate(templateName, destDir, config.TemplateVars{ProjectName: projectName}, initFlagForce)
	if err != nil {
		return fmt.Errorf("rendering template %q: %w", templateName, err)
	}

	printInitSummary(destDir, cfgPath, projectName, templateName, created)
	return nil
}

// printInitSummary reports what init did on stderr, listing created files
// relative to the project directory.
func printInitSummary(destDir, cfgPath, projectName, templateName string, created []string) {
	stderr := os.Stderr

	fmt.Fprintf(stderr, "Initialized project %q from template %q\n\n", projectName, templateName)

	if len(created) > 0 {
		fmt.Fprintln(stderr, "Created files:")
		for _, f := range created {
			rel, relErr := filepath.Rel(destDir, f)
			if relErr != nil {
				rel = f
			}
			fmt.Fprintf(stderr, "  %s\n", rel)
		}
		fmt.Fprintln(stderr)
	}

	fmt.Fprintln(stderr, "Next steps:")
	fmt.Fprintf(stderr, "  1. Edit %s to configure networks and the policy path\n", cfgPath)
	fmt.Fprintln(stderr, "  2. Review policy.json and the starter workflows")
	fmt.Fprintln(stderr, "  3. Run: w3rt run workflows/sandbox-swap.yaml")
}

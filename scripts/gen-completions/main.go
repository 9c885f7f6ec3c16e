// Command gen-completions writes shell completion scripts for the w3rt CLI.
// Release packaging runs it ahead of archiving so the completions/ directory
// ships alongside the binary.
//
// Usage:
//
//	go run ./scripts/gen-completions [output-dir]
//
// Without an argument the scripts land in ./completions.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/w3rt/w3rt/internal/cli"
)

type generator func(*cobra.Command, io.Writer) error

// Zsh expects an underscore-prefixed file on $fpath; the other shells source
// a named script.
var shells = []struct {
	file string
	gen  generator
}{
	{"w3rt.bash", func(c *cobra.Command, w io.Writer) error { return c.GenBashCompletionV2(w, true) }},
	{"_w3rt", (*cobra.Command).GenZshCompletion},
	{"w3rt.fish", func(c *cobra.Command, w io.Writer) error { return c.GenFishCompletion(w, true) }},
	{"w3rt.ps1", (*cobra.Command).GenPowerShellCompletionWithDesc},
}

func main() {
	outDir := "completions"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := run(outDir); err != nil {
		fmt.Fprintln(os.Stderr, "gen-completions:", err)
		os.Exit(1)
	}
}

func run(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	root := cli.NewRootCmd()
	for _, s := range shells {
		path := filepath.Join(outDir, s.file)
		if err := writeScript(path, root, s.gen); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}

func writeScript(path string, root *cobra.Command, gen generator) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gen(root, f); err != nil {
		f.Close()
		return fmt.Errorf("generating %s: %w", path, err)
	}
	return f.Close()
}

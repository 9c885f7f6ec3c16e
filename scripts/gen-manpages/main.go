// Command gen-manpages renders section-1 man pages for w3rt and every
// subcommand via cobra's doc package. Release packaging runs it ahead of
// archiving so man/man1/ ships alongside the binary.
//
// Usage:
//
//	go run ./scripts/gen-manpages [output-dir]
//
// Without an argument the pages land in ./man/man1.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/w3rt/w3rt/internal/cli"
)

func main() {
	outDir := "man/man1"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := run(outDir); err != nil {
		fmt.Fprintln(os.Stderr, "gen-manpages:", err)
		os.Exit(1)
	}
}

func run(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	header := &doc.GenManHeader{
		Title:   "W3RT",
		Section: "1",
		Source:  "w3rt",
		Manual:  "w3rt Manual",
	}
	if err := doc.GenManTree(cli.NewRootCmd(), header, outDir); err != nil {
		return fmt.Errorf("rendering man tree: %w", err)
	}

	fmt.Printf("man pages written to %s\n", outDir)
	return nil
}

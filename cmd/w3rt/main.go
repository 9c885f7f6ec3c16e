// Command w3rt is the safety-gated workflow runner CLI.
//
// All command wiring lives in internal/cli; this entry point only hands
// control to the root command and propagates its exit code.
package main

import (
	"os"

	"github.com/w3rt/w3rt/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

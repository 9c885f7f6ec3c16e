// Package logging wires charmbracelet/log into w3rt.
//
// Every component gets its logger from New with a short prefix ("engine",
// "trace", "run") and all of it lands on stderr. Stdout is a data channel:
// compiled plans, trace queries, and --json output go there, and mixing log
// lines into it would corrupt whatever a script is piping. Setup runs once in
// the CLI's PersistentPreRun, before any New call, because charmbracelet/log
// children copy the default logger's state at creation time and never see
// later changes to it.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Setup applies the global level and formatter. Verbose lowers the level to
// debug, quiet raises it to error, and quiet wins when both are set so that
// scripted callers can rely on --quiet suppressing noise unconditionally.
// jsonFormat switches the formatter to NDJSON for log aggregation.
func Setup(verbose, quiet, jsonFormat bool) {
	switch {
	case quiet:
		log.SetLevel(log.ErrorLevel)
	case verbose:
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	formatter := log.TextFormatter
	if jsonFormat {
		formatter = log.JSONFormatter
	}
	log.SetFormatter(formatter)
	log.SetOutput(os.Stderr)
}

// New returns a component-prefixed logger that inherits the level, formatter,
// and output configured by Setup. An empty component yields an unprefixed
// logger.
func New(component string) *log.Logger {
	return log.WithPrefix(component)
}

// SetOutput redirects the default logger, typically to a bytes.Buffer in
// tests. Restore the original writer in t.Cleanup.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Package buildinfo carries the version metadata stamped into the binary.
//
// The Makefile injects all three variables with -ldflags -X; a plain
// `go build` leaves the dev defaults in place, which is how `w3rt version`
// distinguishes a release binary from a working-tree build.
package buildinfo

import "fmt"

var (
	// Version is the release tag or `git describe` output, "dev" when unset.
	Version = "dev"
	// Commit is the abbreviated git SHA of the build.
	Commit = "unknown"
	// Date is the UTC build time in RFC3339.
	Date = "unknown"
)

// Info is a point-in-time snapshot of the stamped metadata, shaped for the
// JSON output of `w3rt version --json`.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// GetInfo snapshots the package-level variables.
func GetInfo() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

// String renders the one-line form printed by `w3rt version`:
//
//	w3rt v1.2.0 (commit: a1b2c3d, built: 2026-03-01T00:00:00Z)
func (i Info) String() string {
	return fmt.Sprintf("w3rt v%s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
}

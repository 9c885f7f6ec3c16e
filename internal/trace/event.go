// Package trace implements the append-only run trace and the content-
// addressed artifact store, plus the read-only views built on top of them:
// run listing, event queries, audit reports, and replay validation.
//
// Layout below the store's base directory:
//
//	runs/<runId>/trace.jsonl          one JSON event per line, append-only
//	runs/<runId>/artifacts/<name>.json pretty-printed artifact
//
// Run ids begin with a UTC timestamp so that reverse-lexicographic order is
// newest-first; a random suffix keeps concurrent runs distinct.
package trace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types, in the order they typically appear in a trace.
const (
	EventRunStarted     = "run.started"
	EventRunFinished    = "run.finished"
	EventStepStarted    = "step.started"
	EventStepFinished   = "step.finished"
	EventToolCalled     = "tool.called"
	EventToolResult     = "tool.result"
	EventToolError      = "tool.error"
	EventPolicyDecision = "policy.decision"
	EventTxBuilt        = "tx.built"
	EventTxSimulated    = "tx.simulated"
	EventTxSubmitted    = "tx.submitted"
	EventTxConfirmed    = "tx.confirmed"
)

// Event is a single trace record. The store assigns ID and TS on emit; TS is
// milliseconds, strictly increasing within a run so event order is recoverable
// from timestamps alone.
type Event struct {
	ID       string         `json:"id"`
	TS       int64          `json:"ts"`
	Type     string         `json:"type"`
	RunID    string         `json:"runId"`
	StepID   string         `json:"stepId,omitempty"`
	Chain    string         `json:"chain,omitempty"`
	Tool     string         `json:"tool,omitempty"`
	WalletID string         `json:"walletId,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// NewRunID mints a run identifier with a sortable UTC timestamp prefix and a
// random suffix. Newest runs sort last lexicographically, so listings read
// them in reverse.
func NewRunID() string {
	return fmt.Sprintf("%s-%s",
		time.Now().UTC().Format("20060102-150405.000"),
		uuid.NewString()[:8])
}

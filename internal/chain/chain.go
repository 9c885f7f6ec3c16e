// Package chain defines the driver capability tools use to reach a
// blockchain: transaction simulation and program-id extraction over an
// opaque base64 transaction payload. Drivers own all RPC I/O; the engine
// and the policy layer never talk to a chain directly.
package chain

import "context"

// Opts carries per-call driver options.
type Opts struct {
	// RPCURL overrides the driver's default endpoint for this call. Empty
	// means use the driver default.
	RPCURL string
}

// SimResult is the outcome of simulating a transaction without
// broadcasting it.
type SimResult struct {
	OK            bool     `json:"ok"`
	Err           string   `json:"err,omitempty"`
	Logs          []string `json:"logs,omitempty"`
	UnitsConsumed int64    `json:"unitsConsumed,omitempty"`
}

// ExtractResult reports the program ids referenced by a transaction. Known
// is false when the payload could not be decoded; callers must treat an
// unknown program set as unsafe, never as empty.
type ExtractResult struct {
	Known bool     `json:"known"`
	IDs   []string `json:"ids"`
}

// Driver is the capability a chain integration provides. Implementations
// must be safe for concurrent use; a single driver instance is shared
// across runs.
type Driver interface {
	// Chain names the chain this driver serves, e.g. "solana".
	Chain() string

	// SimulateTxB64 simulates a base64-encoded signed transaction. A
	// failed simulation is reported through SimResult.OK/Err; the error
	// return is reserved for transport-level failures.
	SimulateTxB64(ctx context.Context, txB64 string, opts Opts) (SimResult, error)

	// ExtractIDsFromTxB64 lists the program ids the transaction invokes.
	ExtractIDsFromTxB64(ctx context.Context, txB64 string, opts Opts) (ExtractResult, error)
}

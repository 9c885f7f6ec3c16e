package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// SandboxProgramID is the swap program the sandbox driver pretends to
// invoke. Policy allowlists used in development runs should include it.
const SandboxProgramID = "SBoxSwap1111111111111111111111111111111111"

// Compile-time check that Sandbox implements Driver.
var _ Driver = (*Sandbox)(nil)

// SandboxTx is the synthetic transaction payload the sandbox driver
// understands: plain JSON wrapped in base64. Real drivers decode wire-format
// transactions; the sandbox only needs enough structure to exercise the
// simulation and policy paths deterministically.
type SandboxTx struct {
	// Programs lists the program ids the transaction claims to invoke.
	Programs []string `json:"programs"`

	// FailReason, when non-empty, makes simulation fail with this message.
	FailReason string `json:"failReason,omitempty"`

	// SlippageBps is echoed into the simulation logs so downstream tools
	// can report simulated slippage.
	SlippageBps int64 `json:"slippageBps,omitempty"`
}

// EncodeSandboxTx renders a SandboxTx into the base64 form the sandbox
// driver decodes. Builder tools use this to fabricate transactions.
func EncodeSandboxTx(tx SandboxTx) string {
	data, _ := json.Marshal(tx)
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeSandboxTx reverses EncodeSandboxTx. ok is false for payloads the
// sandbox did not produce.
func DecodeSandboxTx(txB64 string) (SandboxTx, bool) {
	data, err := base64.StdEncoding.DecodeString(txB64)
	if err != nil {
		return SandboxTx{}, false
	}
	var tx SandboxTx
	if err := json.Unmarshal(data, &tx); err != nil {
		return SandboxTx{}, false
	}
	return tx, true
}

// Sandbox is a deterministic in-memory Driver for development and tests. It
// performs no I/O: simulation outcomes are read straight from the decoded
// payload, so a test controls the driver entirely through the transactions
// it builds.
type Sandbox struct {
	chain string
}

// NewSandbox returns a sandbox driver posing as a solana integration.
func NewSandbox() *Sandbox {
	return &Sandbox{chain: "solana"}
}

// Chain returns the chain name the sandbox poses as.
func (s *Sandbox) Chain() string { return s.chain }

// SimulateTxB64 decodes the synthetic payload and reports the outcome it
// encodes. Undecodable payloads fail the simulation rather than erroring:
// a malformed transaction is a result, not a transport problem.
func (s *Sandbox) SimulateTxB64(_ context.Context, txB64 string, _ Opts) (SimResult, error) {
	tx, ok := DecodeSandboxTx(txB64)
	if !ok {
		return SimResult{OK: false, Err: "sandbox: undecodable transaction payload"}, nil
	}
	if tx.FailReason != "" {
		return SimResult{
			OK:   false,
			Err:  tx.FailReason,
			Logs: []string{"Program log: " + tx.FailReason},
		}, nil
	}

	logs := make([]string, 0, 2*len(tx.Programs)+1)
	for _, id := range tx.Programs {
		logs = append(logs, fmt.Sprintf("Program %s invoke [1]", id))
		logs = append(logs, fmt.Sprintf("Program %s success", id))
	}
	if tx.SlippageBps > 0 {
		logs = append(logs, fmt.Sprintf("Program log: slippage_bps=%d", tx.SlippageBps))
	}
	return SimResult{
		OK:            true,
		Logs:          logs,
		UnitsConsumed: 1200 + 800*int64(len(tx.Programs)),
	}, nil
}

// ExtractIDsFromTxB64 lists the program ids of a synthetic payload. Payloads
// the sandbox cannot decode come back Known=false with no ids.
func (s *Sandbox) ExtractIDsFromTxB64(_ context.Context, txB64 string, _ Opts) (ExtractResult, error) {
	tx, ok := DecodeSandboxTx(txB64)
	if !ok {
		return ExtractResult{Known: false}, nil
	}
	ids := make([]string, len(tx.Programs))
	copy(ids, tx.Programs)
	return ExtractResult{Known: true, IDs: ids}, nil
}

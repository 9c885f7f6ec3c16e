// Package policy implements the decision engine that gates blockchain side
// effects. Decide is a pure function over a policy configuration and a call
// context: the same inputs always produce the same decision, and the engine
// holds no mutable state of its own. Rate-limit counters are supplied by the
// caller, typically from a Ledger.
//
// Decisions come in four kinds. In increasing severity: allow, warn, confirm
// (requires an explicit human acknowledgement keyed by ConfirmationKey), and
// block (the call must not proceed). Built-in gates are evaluated in a fixed
// order followed by the configured custom rules; the first match wins.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/w3rt/w3rt/internal/expr"
)

// Decision kinds, ordered by severity.
const (
	KindAllow   = "allow"
	KindWarn    = "warn"
	KindConfirm = "confirm"
	KindBlock   = "block"
)

// Decision codes for the built-in gates. Custom rules produce
// "RULE_<UPPER(name)>" codes instead.
const (
	CodeMainnetDisabled           = "MAINNET_DISABLED"
	CodeSimulationRequired        = "SIMULATION_REQUIRED"
	CodeActionNotAllowed          = "ACTION_NOT_ALLOWED"
	CodeProgramsUnknown           = "PROGRAMS_UNKNOWN"
	CodeProgramNotAllowed         = "PROGRAM_NOT_ALLOWED"
	CodeCooldownActive            = "COOLDOWN_ACTIVE"
	CodeRateLimit                 = "RATE_LIMIT"
	CodeAmountSolLarge            = "AMOUNT_SOL_LARGE"
	CodeAmountLarge               = "AMOUNT_LARGE"
	CodeSimulatedSlippageRequired = "SIMULATED_SLIPPAGE_REQUIRED"
	CodeSlippageHigh              = "SLIPPAGE_HIGH"
	CodeSimulatedSlippageHigh     = "SIMULATED_SLIPPAGE_HIGH"
)

// Decision is the outcome of evaluating a call against a policy. Reasons
// name the configuration keys and context fields that produced the outcome
// so audits can reconstruct the why without replaying the policy.
type Decision struct {
	Kind            string   `json:"kind"`
	Code            string   `json:"code,omitempty"`
	Message         string   `json:"message,omitempty"`
	ConfirmationKey string   `json:"confirmationKey,omitempty"`
	Reasons         []string `json:"reasons"`
}

// Blocked reports whether the decision forbids the call outright.
func (d Decision) Blocked() bool { return d.Kind == KindBlock }

// NeedsConfirmation reports whether the call may proceed only after an
// explicit acknowledgement.
func (d Decision) NeedsConfirmation() bool { return d.Kind == KindConfirm }

// NetworkPolicy configures one named network. Enabled is a pointer so that
// an absent key means "no opinion": only an explicit false disables the
// network.
type NetworkPolicy struct {
	Enabled           *bool `json:"enabled,omitempty"`
	RequireSimulation bool  `json:"requireSimulation,omitempty"`
}

// TransactionPolicy sets the numeric ceilings and rate limits for
// broadcasting transactions. Pointer fields distinguish "not configured"
// from an explicit zero.
type TransactionPolicy struct {
	MaxSingleSol       *float64 `json:"maxSingleSol,omitempty"`
	MaxSingleAmountUsd *float64 `json:"maxSingleAmountUsd,omitempty"`
	MaxSlippageBps     *float64 `json:"maxSlippageBps,omitempty"`

	// CooldownSeconds is the minimum spacing between broadcasts. Zero
	// disables the cooldown gate.
	CooldownSeconds float64 `json:"cooldownSeconds,omitempty"`

	// MaxTxPerMinute caps broadcasts in any rolling minute. Zero disables
	// the rate gate.
	MaxTxPerMinute int `json:"maxTxPerMinute,omitempty"`

	// RequireSimulatedSlippageOnMainnet forces mainnet swap broadcasts to
	// carry a slippage figure measured by simulation, not just the
	// requested one.
	RequireSimulatedSlippageOnMainnet bool `json:"requireSimulatedSlippageOnMainnet,omitempty"`
}

// Allowlist restricts which actions and which Solana programs a call may
// touch. Empty lists impose no restriction; a non-empty program list is
// fail-closed (unresolvable program ids block).
type Allowlist struct {
	Actions        []string `json:"actions,omitempty"`
	SolanaPrograms []string `json:"solanaPrograms,omitempty"`
}

// Rule is a custom policy rule evaluated after the built-in gates. Condition
// uses the shared expression DSL over call-context paths.
type Rule struct {
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Action    string `json:"action"`
	Message   string `json:"message,omitempty"`
}

// Config is a complete policy document.
type Config struct {
	Networks     map[string]NetworkPolicy `json:"networks,omitempty"`
	Transactions TransactionPolicy        `json:"transactions,omitempty"`
	Allowlist    Allowlist                `json:"allowlist,omitempty"`
	Rules        []Rule                   `json:"rules,omitempty"`
}

// ruleActions are the verbs a custom rule may carry.
var ruleActions = map[string]bool{
	KindAllow:   true,
	KindWarn:    true,
	KindConfirm: true,
	KindBlock:   true,
}

// Validate checks the parts of a config that cannot fail lazily: every rule
// needs a name, a parseable condition, and a known action verb.
func (c *Config) Validate() error {
	for i, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("policy rule %d: missing name", i)
		}
		if !ruleActions[r.Action] {
			return fmt.Errorf("policy rule %q: unknown action %q", r.Name, r.Action)
		}
		if strings.TrimSpace(r.Condition) == "" {
			return fmt.Errorf("policy rule %q: missing condition", r.Name)
		}
		if _, err := expr.Parse(r.Condition); err != nil {
			return fmt.Errorf("policy rule %q: %w", r.Name, err)
		}
	}
	return nil
}

// ParseConfig decodes and validates a policy document.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadConfig reads, decodes, and validates a policy file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParseConfig(data)
}

// Document re-reads a policy file as a raw JSON object for verbatim
// embedding in plan metadata. The typed Config is lossy (unknown fields are
// dropped), so embedding always goes through the raw form.
func Document(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return doc, nil
}

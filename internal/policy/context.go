package policy

import (
	"github.com/w3rt/w3rt/internal/runctx"
)

// Side effect classes a call context can carry.
const (
	SideEffectNone      = "none"
	SideEffectBroadcast = "broadcast"
)

// Networks recognized by the built-in gates.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// CallContext describes a single prospective tool call. Optional numeric
// fields are pointers: nil means the caller could not supply the figure,
// which is different from zero and matters to several gates.
type CallContext struct {
	Chain      string `json:"chain,omitempty"`
	Network    string `json:"network,omitempty"`
	Action     string `json:"action,omitempty"`
	SideEffect string `json:"sideEffect,omitempty"`

	// SimulationOk is true only when a simulation ran and passed.
	SimulationOk bool `json:"simulationOk,omitempty"`

	AmountUsd            *float64 `json:"amountUsd,omitempty"`
	AmountSol            *float64 `json:"amountSol,omitempty"`
	AmountLamports       *float64 `json:"amountLamports,omitempty"`
	SlippageBps          *float64 `json:"slippageBps,omitempty"`
	SimulatedSlippageBps *float64 `json:"simulatedSlippageBps,omitempty"`

	// ProgramIds lists the on-chain programs the call would touch.
	// ProgramIdsKnown is true only when that list is trustworthy; the
	// program allowlist fails closed otherwise.
	ProgramIds      []string `json:"programIds,omitempty"`
	ProgramIdsKnown bool     `json:"programIdsKnown,omitempty"`

	TokenMints []string `json:"tokenMints,omitempty"`

	// SecondsSinceLastBroadcast and BroadcastsLastMinute feed the rate
	// gates. Nil seconds means no prior broadcast is known.
	SecondsSinceLastBroadcast *float64 `json:"secondsSinceLastBroadcast,omitempty"`
	BroadcastsLastMinute      int      `json:"broadcastsLastMinute,omitempty"`

	// Metrics carries arbitrary caller-supplied figures for custom rules.
	Metrics map[string]any `json:"metrics,omitempty"`
}

// ruleContext projects the call context into a dotted-path map for the
// expression DSL. Absent optional fields stay absent so rule conditions see
// them as undefined rather than zero.
func (c *CallContext) ruleContext() *runctx.Map {
	m := map[string]any{
		"chain":                c.Chain,
		"network":              c.Network,
		"action":               c.Action,
		"sideEffect":           c.SideEffect,
		"simulationOk":         c.SimulationOk,
		"programIdsKnown":      c.ProgramIdsKnown,
		"broadcastsLastMinute": c.BroadcastsLastMinute,
	}
	putFloat := func(key string, v *float64) {
		if v != nil {
			m[key] = *v
		}
	}
	putFloat("amountUsd", c.AmountUsd)
	putFloat("amountSol", c.AmountSol)
	putFloat("amountLamports", c.AmountLamports)
	putFloat("slippageBps", c.SlippageBps)
	putFloat("simulatedSlippageBps", c.SimulatedSlippageBps)
	putFloat("secondsSinceLastBroadcast", c.SecondsSinceLastBroadcast)
	if c.ProgramIds != nil {
		m["programIds"] = stringsToAny(c.ProgramIds)
	}
	if c.TokenMints != nil {
		m["tokenMints"] = stringsToAny(c.TokenMints)
	}
	if c.Metrics != nil {
		m["metrics"] = c.Metrics
	}
	return runctx.FromMap(m)
}

// ContextFromCall assembles a CallContext for a prospective tool call from
// the call's own parameters and the accumulated run context. It is the
// uniform wiring hosts use for the engine's policy check: amounts and the
// requested slippage come from params, simulation results and extracted
// program ids come from the run context under their conventional aliases.
func ContextFromCall(chain, network, action, sideEffect string, params map[string]any, rc *runctx.Map) *CallContext {
	call := &CallContext{
		Chain:      chain,
		Network:    network,
		Action:     action,
		SideEffect: sideEffect,
	}
	if params != nil {
		call.AmountUsd = floatParam(params, "amountUsd")
		call.AmountSol = floatParam(params, "amountSol")
		call.AmountLamports = floatParam(params, "amountLamports")
		call.SlippageBps = floatParam(params, "slippageBps")
	}
	if rc != nil {
		if v, ok := rc.Get("simulation.ok"); ok {
			call.SimulationOk = v == true
		}
		if v, ok := rc.Get("simulation.slippageBps"); ok {
			call.SimulatedSlippageBps = floatValue(v)
		}
		if v, ok := rc.Get("programs.known"); ok {
			call.ProgramIdsKnown = v == true
		}
		if v, ok := rc.Get("programs.ids"); ok {
			call.ProgramIds = anyToStrings(v)
		}
	}
	return call
}

// floatParam extracts a numeric parameter as a float pointer, nil when the
// key is absent or not a number.
func floatParam(params map[string]any, key string) *float64 {
	v, ok := params[key]
	if !ok {
		return nil
	}
	return floatValue(v)
}

func floatValue(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int64:
		f := float64(t)
		return &f
	case int:
		f := float64(t)
		return &f
	case float32:
		f := float64(t)
		return &f
	default:
		return nil
	}
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func anyToStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

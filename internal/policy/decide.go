package policy

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/w3rt/w3rt/internal/expr"
)

// Decide evaluates a call against a policy and returns the first matching
// decision. The built-in gates run in a fixed order before any custom rules;
// a call that passes everything is allowed.
//
// Gate order: mainnet enablement, mainnet simulation requirement, action
// allowlist, Solana program allowlist (fail-closed), broadcast rate limits
// (cooldown, per-minute cap), size ceilings (SOL then USD), required
// simulated slippage for mainnet swap broadcasts, slippage ceiling, custom
// rules, default allow.
//
// Decide is pure. It reads cfg and call and nothing else, so identical
// inputs always yield identical decisions.
func Decide(cfg *Config, call *CallContext) Decision {
	mainnet := cfg.Networks[NetworkMainnet]
	onMainnet := call.Network == NetworkMainnet
	broadcast := call.SideEffect == SideEffectBroadcast

	// 1. Mainnet must be explicitly enabled when the config has an opinion.
	if onMainnet && mainnet.Enabled != nil && !*mainnet.Enabled {
		return Decision{
			Kind:    KindBlock,
			Code:    CodeMainnetDisabled,
			Message: "mainnet is disabled by policy",
			Reasons: []string{"networks.mainnet.enabled=false", "network=mainnet"},
		}
	}

	// 2. Mainnet broadcasts may require a passing simulation first.
	if onMainnet && mainnet.RequireSimulation && broadcast && !call.SimulationOk {
		return Decision{
			Kind:    KindBlock,
			Code:    CodeSimulationRequired,
			Message: "simulation must pass before broadcasting on mainnet",
			Reasons: []string{"networks.mainnet.requireSimulation=true", "sideEffect=broadcast", "simulationOk=false"},
		}
	}

	// 3. Action allowlist.
	if len(cfg.Allowlist.Actions) > 0 && !containsString(cfg.Allowlist.Actions, call.Action) {
		return Decision{
			Kind:    KindBlock,
			Code:    CodeActionNotAllowed,
			Message: fmt.Sprintf("action %q is not in the allowlist", call.Action),
			Reasons: []string{"allowlist.actions", "action=" + call.Action},
		}
	}

	// 4. Solana program allowlist. Fail closed: if the call cannot prove
	// which programs it touches, it does not touch any.
	if call.Chain == "solana" && len(cfg.Allowlist.SolanaPrograms) > 0 {
		if !call.ProgramIdsKnown {
			return Decision{
				Kind:    KindBlock,
				Code:    CodeProgramsUnknown,
				Message: "program ids could not be determined; refusing under a program allowlist",
				Reasons: []string{"allowlist.solanaPrograms", "programIdsKnown=false"},
			}
		}
		for _, id := range call.ProgramIds {
			if !containsString(cfg.Allowlist.SolanaPrograms, id) {
				return Decision{
					Kind:    KindBlock,
					Code:    CodeProgramNotAllowed,
					Message: fmt.Sprintf("program %s is not in the allowlist", id),
					Reasons: []string{"allowlist.solanaPrograms", "programId=" + id},
				}
			}
		}
	}

	// 5. Broadcast rate limits.
	if broadcast {
		cooldown := cfg.Transactions.CooldownSeconds
		if cooldown > 0 && call.SecondsSinceLastBroadcast != nil {
			since := *call.SecondsSinceLastBroadcast
			if since >= 0 && since < cooldown {
				wait := int64(math.Ceil(cooldown - since))
				return Decision{
					Kind:    KindBlock,
					Code:    CodeCooldownActive,
					Message: fmt.Sprintf("wait %ds", wait),
					Reasons: []string{
						"transactions.cooldownSeconds=" + num(cooldown),
						"secondsSinceLastBroadcast=" + num(since),
					},
				}
			}
		}
		if limit := cfg.Transactions.MaxTxPerMinute; limit > 0 && call.BroadcastsLastMinute >= limit {
			return Decision{
				Kind:    KindBlock,
				Code:    CodeRateLimit,
				Message: fmt.Sprintf("%d broadcasts in the last minute (max %d)", call.BroadcastsLastMinute, limit),
				Reasons: []string{
					fmt.Sprintf("transactions.maxTxPerMinute=%d", limit),
					fmt.Sprintf("broadcastsLastMinute=%d", call.BroadcastsLastMinute),
				},
			}
		}
	}

	// 6. Size ceilings. Strictly greater-than: amounts at the limit pass.
	if call.AmountSol != nil && cfg.Transactions.MaxSingleSol != nil && *call.AmountSol > *cfg.Transactions.MaxSingleSol {
		return Decision{
			Kind:            KindConfirm,
			Code:            CodeAmountSolLarge,
			Message:         fmt.Sprintf("amount %s SOL exceeds the single-transaction limit of %s SOL", num(*call.AmountSol), num(*cfg.Transactions.MaxSingleSol)),
			ConfirmationKey: "amount_sol_large",
			Reasons: []string{
				"transactions.maxSingleSol=" + num(*cfg.Transactions.MaxSingleSol),
				"amountSol=" + num(*call.AmountSol),
			},
		}
	}
	if call.AmountUsd != nil && cfg.Transactions.MaxSingleAmountUsd != nil && *call.AmountUsd > *cfg.Transactions.MaxSingleAmountUsd {
		return Decision{
			Kind:            KindConfirm,
			Code:            CodeAmountLarge,
			Message:         fmt.Sprintf("amount $%s exceeds the single-transaction limit of $%s", num(*call.AmountUsd), num(*cfg.Transactions.MaxSingleAmountUsd)),
			ConfirmationKey: "amount_large",
			Reasons: []string{
				"transactions.maxSingleAmountUsd=" + num(*cfg.Transactions.MaxSingleAmountUsd),
				"amountUsd=" + num(*call.AmountUsd),
			},
		}
	}

	// 7. Mainnet swap broadcasts may be required to carry a simulated
	// slippage figure, not just the requested one.
	if cfg.Transactions.RequireSimulatedSlippageOnMainnet &&
		call.Chain == "solana" && onMainnet && broadcast && call.Action == "swap" &&
		call.SimulatedSlippageBps == nil {
		return Decision{
			Kind:    KindBlock,
			Code:    CodeSimulatedSlippageRequired,
			Message: "mainnet swap requires slippage measured by simulation",
			Reasons: []string{"transactions.requireSimulatedSlippageOnMainnet=true", "simulatedSlippageBps missing"},
		}
	}

	// 8. Slippage ceiling. The simulated figure wins over the requested one
	// when both are present.
	if cfg.Transactions.MaxSlippageBps != nil {
		slippage := call.SlippageBps
		code := CodeSlippageHigh
		label := "Requested"
		field := "slippageBps"
		if call.SimulatedSlippageBps != nil {
			slippage = call.SimulatedSlippageBps
			code = CodeSimulatedSlippageHigh
			label = "Simulated"
			field = "simulatedSlippageBps"
		}
		if slippage != nil && *slippage > *cfg.Transactions.MaxSlippageBps {
			return Decision{
				Kind:            KindConfirm,
				Code:            code,
				Message:         fmt.Sprintf("%s slippage: %.2f%%", label, *slippage/100),
				ConfirmationKey: "slippage_high",
				Reasons: []string{
					"transactions.maxSlippageBps=" + num(*cfg.Transactions.MaxSlippageBps),
					field + "=" + num(*slippage),
				},
			}
		}
	}

	// 9. Custom rules, in declaration order.
	if d := EvaluateRules(cfg.Rules, call); d != nil {
		return *d
	}

	// 10. Nothing objected.
	return Decision{Kind: KindAllow, Reasons: []string{"default"}}
}

// EvaluateRules evaluates custom rules in declaration order against the call
// context and returns the first non-allow match, or nil when no rule fires.
// Rules whose action is "allow" match without terminating; they exist to
// document intent. Conditions that fail to parse never match (LoadConfig
// rejects them up front).
func EvaluateRules(rules []Rule, call *CallContext) *Decision {
	if len(rules) == 0 {
		return nil
	}
	rc := call.ruleContext()
	for _, r := range rules {
		matched, err := expr.EvalString(r.Condition, rc)
		if err != nil || !matched {
			continue
		}
		if r.Action == KindAllow {
			continue
		}
		d := Decision{
			Kind:    r.Action,
			Code:    "RULE_" + strings.ToUpper(r.Name),
			Message: r.Message,
			Reasons: []string{"rules." + r.Name, "condition: " + r.Condition},
		}
		if d.Message == "" {
			d.Message = fmt.Sprintf("rule %q matched", r.Name)
		}
		if r.Action == KindConfirm {
			d.ConfirmationKey = "rule_" + r.Name
		}
		return &d
	}
	return nil
}

// num formats a float without a trailing ".00" when the value is whole.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

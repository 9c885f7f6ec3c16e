package plan

import (
	"fmt"

	"github.com/w3rt/w3rt/internal/canonjson"
)

// Compile validates w, injects missing safety steps, and emits a plan whose
// steps are a topological ordering of the (augmented) action list with ties
// broken by source order. The optional policy document is embedded verbatim
// in meta together with its canonical digest.
//
// Safety injection: every w3rt_swap_exec action that does not already depend,
// directly or transitively, on a w3rt_tx_simulate step gains one. The
// injected step is placed immediately before the execution in source order,
// inherits the execution's dependencies and params (minus the confirmation
// literal), and is wired in as a new dependency of the execution. Injected
// ids derive from the execution id so the output is deterministic.
func Compile(w *Workflow, policy map[string]any) (*Plan, error) {
	if err := Validate(w); err != nil {
		return nil, err
	}

	actions := injectSimulations(w.Actions)
	idx := actionIndex(actions)
	order, ok := kahnOrder(actions, idx)
	if !ok {
		// Validate accepted the source graph and injection only adds fresh
		// nodes on existing edges, so this is unreachable in practice.
		return nil, validationErr(ErrCycle, "", "cycle detected in dependsOn graph")
	}

	steps := make([]Step, 0, len(order))
	for _, pos := range order {
		a := actions[pos]
		params := a.Params
		if params == nil {
			params = map[string]any{}
		}
		deps := a.DependsOn
		if deps == nil {
			deps = []string{}
		}
		steps = append(steps, Step{ID: a.ID, Tool: a.Tool, Params: params, DependsOn: deps})
	}

	p := &Plan{Schema: Schema, Workflow: w.Name, Steps: steps}

	meta := &Meta{}
	if policy != nil {
		policyHash, err := canonjson.Digest(policy)
		if err != nil {
			return nil, fmt.Errorf("hash policy: %w", err)
		}
		meta.Policy = policy
		meta.PolicyHash = policyHash
	}
	planHash, err := Hash(p)
	if err != nil {
		return nil, err
	}
	meta.PlanHash = planHash
	p.Meta = meta

	return p, nil
}

// Hash computes the canonical digest of a plan over schema, workflow name,
// and steps. Meta is excluded so the digest can be stored inside it.
func Hash(p *Plan) (string, error) {
	digest, err := canonjson.Digest(map[string]any{
		"schema":   p.Schema,
		"workflow": p.Workflow,
		"steps":    p.Steps,
	})
	if err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}
	return digest, nil
}

// InjectedIDs returns, in plan order, the ids of steps the compiler added
// that are absent from the source workflow.
func InjectedIDs(w *Workflow, p *Plan) []string {
	source := make(map[string]bool, len(w.Actions))
	for _, a := range w.Actions {
		source[a.ID] = true
	}
	var injected []string
	for _, s := range p.Steps {
		if !source[s.ID] {
			injected = append(injected, s.ID)
		}
	}
	return injected
}

// injectSimulations returns a copy of actions with a simulation step inserted
// before every swap execution whose dependency closure contains none.
func injectSimulations(actions []Action) []Action {
	idx := actionIndex(actions)
	taken := make(map[string]bool, len(actions))
	for _, a := range actions {
		taken[a.ID] = true
	}

	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.Tool != ToolSwapExec {
			out = append(out, a)
			continue
		}
		simulated := dependsTransitively(actions, idx, a.DependsOn, func(tool string) bool {
			return tool == ToolTxSimulate
		})
		if simulated {
			out = append(out, a)
			continue
		}

		simID := synthesizeID(a.ID, taken)
		taken[simID] = true

		sim := Action{
			ID:        simID,
			Tool:      ToolTxSimulate,
			Params:    paramsWithoutConfirm(a.Params),
			DependsOn: append([]string(nil), a.DependsOn...),
		}

		exec := a
		exec.DependsOn = append(append([]string(nil), a.DependsOn...), simID)

		out = append(out, sim, exec)
	}
	return out
}

// synthesizeID derives an unused id for an injected simulation step. The base
// form is "<execID>__sim"; numeric suffixes resolve collisions with source
// ids deterministically.
func synthesizeID(execID string, taken map[string]bool) string {
	base := execID + "__sim"
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s%d", base, i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// paramsWithoutConfirm shallow-copies params, dropping the confirmation
// literal that only the execution tool understands.
func paramsWithoutConfirm(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "confirm" {
			continue
		}
		out[k] = v
	}
	return out
}

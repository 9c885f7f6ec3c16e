package plan

import "fmt"

// Validation error codes. Codes are stable strings so callers can switch on
// them without parsing messages.
const (
	// ErrDuplicateID is reported when two actions share an id.
	ErrDuplicateID = "DUPLICATE_ID"

	// ErrMissingDependency is reported when a dependsOn entry names an id
	// that is not defined in the same workflow.
	ErrMissingDependency = "MISSING_DEPENDENCY"

	// ErrCycle is reported when the dependsOn graph contains a directed
	// cycle. Unlike step-machine loops, a cyclic dependency graph can never
	// execute, so this is always fatal.
	ErrCycle = "CYCLE"

	// ErrSwapExecNoQuote is reported when a swap execution does not depend,
	// directly or transitively, on a swap quote.
	ErrSwapExecNoQuote = "SWAP_EXEC_NO_QUOTE"

	// ErrSwapExecMissingConfirm is reported when a swap execution carries no
	// params.confirm at all.
	ErrSwapExecMissingConfirm = "SWAP_EXEC_MISSING_CONFIRM"

	// ErrSwapExecBadConfirm is reported when params.confirm is present but is
	// not the required literal.
	ErrSwapExecBadConfirm = "SWAP_EXEC_BAD_CONFIRM"
)

// ValidationError describes the first graph rule a workflow violates. The
// message is a single line suitable for CLI output.
type ValidationError struct {
	// Code is one of the Err* validation constants.
	Code string

	// ActionID names the offending action when the rule is action-scoped,
	// or is empty for graph-level failures such as cycles.
	ActionID string

	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErr(code, actionID, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, ActionID: actionID, msg: fmt.Sprintf(format, args...)}
}

// Validate checks a workflow in DAG form and returns the first rule violated,
// or nil when the workflow is well formed. The checks run in a fixed order:
//
//  1. Action ids are unique.
//  2. Every dependsOn entry references a defined action.
//  3. The dependsOn graph is acyclic (Kahn's algorithm).
//  4. Every swap execution depends on a swap quote (directly or through its
//     dependency closure) and carries params.confirm == "I_CONFIRM".
//
// Validate never mutates the workflow.
func Validate(w *Workflow) error {
	// -----------------------------------------------------------------------
	// Phase 1: Unique ids
	// -----------------------------------------------------------------------

	seen := make(map[string]bool, len(w.Actions))
	for _, a := range w.Actions {
		if seen[a.ID] {
			return validationErr(ErrDuplicateID, a.ID, "duplicate action id: %s", a.ID)
		}
		seen[a.ID] = true
	}

	// -----------------------------------------------------------------------
	// Phase 2: Dependency existence
	// -----------------------------------------------------------------------

	idx := actionIndex(w.Actions)
	for _, a := range w.Actions {
		for _, dep := range a.DependsOn {
			if _, ok := idx[dep]; !ok {
				return validationErr(ErrMissingDependency, a.ID, "missing dependency: %s dependsOn %s", a.ID, dep)
			}
		}
	}

	// -----------------------------------------------------------------------
	// Phase 3: Cycle detection (Kahn)
	// -----------------------------------------------------------------------

	if _, ok := kahnOrder(w.Actions, idx); !ok {
		return validationErr(ErrCycle, "", "cycle detected in dependsOn graph")
	}

	// -----------------------------------------------------------------------
	// Phase 4: Swap execution preconditions
	// -----------------------------------------------------------------------

	for _, a := range w.Actions {
		if a.Tool != ToolSwapExec {
			continue
		}
		quoted := dependsTransitively(w.Actions, idx, a.DependsOn, func(tool string) bool {
			return tool == ToolSwapQuote
		})
		if !quoted {
			return validationErr(ErrSwapExecNoQuote, a.ID, "swap_exec requires dependsOn a w3rt_swap_quote step: %s", a.ID)
		}
		confirm, present := a.Params["confirm"]
		if !present {
			return validationErr(ErrSwapExecMissingConfirm, a.ID, "swap_exec missing params.confirm: %s", a.ID)
		}
		if s, ok := confirm.(string); !ok || s != ConfirmToken {
			return validationErr(ErrSwapExecBadConfirm, a.ID, "swap_exec confirm must be I_CONFIRM: %s", a.ID)
		}
	}

	return nil
}

// kahnOrder computes a topological ordering of the actions with ties broken
// by source order. It returns the ordering as indexes into actions, and false
// when the graph contains a cycle.
//
// In-degrees count dependsOn edges; each iteration pops the ready action with
// the smallest source index, which keeps the output deterministic for a given
// action list.
func kahnOrder(actions []Action, idx map[string]int) ([]int, bool) {
	n := len(actions)
	indegree := make([]int, n)
	dependents := make([][]int, n)

	for i, a := range actions {
		for _, dep := range a.DependsOn {
			pos, ok := idx[dep]
			if !ok {
				continue // undefined deps are reported by Validate before sorting
			}
			indegree[i]++
			dependents[pos] = append(dependents[pos], i)
		}
	}

	ready := make([]bool, n)
	for i := range actions {
		if indegree[i] == 0 {
			ready[i] = true
		}
	}

	order := make([]int, 0, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if ready[i] {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, false // remaining nodes all sit on a cycle
		}
		ready[next] = false
		order = append(order, next)
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready[dependent] = true
			}
		}
	}
	return order, true
}

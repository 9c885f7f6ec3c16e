// Package plan implements the canonical DAG workflow form, its validator,
// and the compiler that turns a workflow into a deterministic, content-
// addressed execution plan.
//
// A workflow in DAG form is a flat list of actions with explicit dependsOn
// edges. The compiler validates the graph, injects safety steps (a transaction
// simulation before every swap execution that lacks one), orders the steps
// topologically with ties broken by source order, and stamps the result with
// a canonical SHA-256 digest so that two logically equal plans always carry
// the same hash.
package plan

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema identifies the plan artifact format emitted by Compile.
const Schema = "w3rt.plan.v1"

// Tool names with compiler-level significance. The validator enforces
// preconditions on ToolSwapExec and the compiler injects ToolTxSimulate steps.
const (
	ToolSwapQuote  = "w3rt_swap_quote"
	ToolSwapExec   = "w3rt_swap_exec"
	ToolTxSimulate = "w3rt_tx_simulate"
)

// ConfirmToken is the literal a swap execution must carry in params.confirm.
const ConfirmToken = "I_CONFIRM"

// Action is a single node in the DAG workflow form.
type Action struct {
	// ID uniquely identifies the action within its workflow.
	ID string `json:"id" yaml:"id"`

	// Tool names the tool the action invokes.
	Tool string `json:"tool" yaml:"tool"`

	// Params are passed to the tool verbatim; template references are
	// resolved at run time, not compile time.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// DependsOn lists the ids of actions that must complete first.
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
}

// Workflow is the canonical DAG form consumed by Validate and Compile.
type Workflow struct {
	Name    string   `json:"name" yaml:"name"`
	Actions []Action `json:"actions" yaml:"actions"`
}

// Step is one entry of a compiled plan. Params and DependsOn are always
// present in the serialized form so the canonical digest never depends on
// which optional fields a source workflow happened to spell out.
type Step struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	DependsOn []string       `json:"dependsOn"`
}

// Meta carries the content digests and, when one was attached at compile
// time, the verbatim policy document.
type Meta struct {
	PlanHash   string         `json:"planHash"`
	PolicyHash string         `json:"policyHash,omitempty"`
	Policy     map[string]any `json:"policy,omitempty"`
}

// Plan is the compiled artifact.
type Plan struct {
	Schema   string `json:"schema"`
	Workflow string `json:"workflow"`
	Steps    []Step `json:"steps"`
	Meta     *Meta  `json:"meta,omitempty"`
}

// ParseWorkflow decodes a DAG workflow from JSON or YAML. JSON is attempted
// first since every JSON document is also valid YAML.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var w Workflow
	if err := json.Unmarshal(data, &w); err == nil {
		return &w, nil
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	return &w, nil
}

// LoadWorkflow reads and decodes a DAG workflow file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return ParseWorkflow(data)
}

// ParsePlan decodes a compiled plan from JSON.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &p, nil
}

// LoadPlan reads and decodes a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

// Encode serializes the plan as indented JSON with a trailing newline,
// suitable for writing to disk or stdout.
func (p *Plan) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return append(data, '\n'), nil
}

// actionIndex maps action ids to their position in source order.
func actionIndex(actions []Action) map[string]int {
	idx := make(map[string]int, len(actions))
	for i, a := range actions {
		if _, seen := idx[a.ID]; !seen {
			idx[a.ID] = i
		}
	}
	return idx
}

// dependsTransitively reports whether, starting from the action ids in seed,
// the dependsOn closure reaches an action whose tool satisfies match.
func dependsTransitively(actions []Action, idx map[string]int, seed []string, match func(tool string) bool) bool {
	visited := make(map[string]bool, len(actions))
	stack := append([]string(nil), seed...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		pos, ok := idx[id]
		if !ok {
			continue
		}
		if match(actions[pos].Tool) {
			return true
		}
		stack = append(stack, actions[pos].DependsOn...)
	}
	return false
}

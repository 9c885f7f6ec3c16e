// Package tool defines the capability record the workflow engine invokes:
// a named tool with safety metadata and an execution entry point. The
// package also ships a sandbox tool set for development runs and tests.
//
// There is deliberately no package-level registry: the engine receives its
// Registry explicitly, so two hosts in one process can run disjoint tool
// sets without interference.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/w3rt/w3rt/internal/runctx"
)

// ErrToolNotFound is returned by Registry.Get when no tool is registered
// under the requested name.
var ErrToolNotFound = errors.New("tool not found")

// Side effect classes used in Meta.SideEffect. The policy gate fires only
// for broadcast tools.
const (
	SideEffectNone      = "none"
	SideEffectBroadcast = "broadcast"
)

// Meta describes what a tool does to the outside world. The engine and the
// policy layer route on it; tools with an empty Meta are treated as pure.
type Meta struct {
	// Action is the policy-facing verb, e.g. "swap" or "simulate".
	Action string `json:"action,omitempty"`

	// SideEffect classifies the tool's blast radius; "broadcast" marks
	// tools that submit signed transactions.
	SideEffect string `json:"sideEffect,omitempty"`

	// Chain names the chain the tool touches, empty for chain-agnostic
	// tools.
	Chain string `json:"chain,omitempty"`

	// Risk is a free-form severity hint ("low", "high") surfaced in traces.
	Risk string `json:"risk,omitempty"`
}

// Tool is one invocable capability. Implementations must be safe for
// concurrent use; a single tool instance is shared across runs.
type Tool interface {
	// Name returns the registry key workflows use to address the tool.
	Name() string

	// Meta returns the tool's safety metadata.
	Meta() Meta

	// Execute runs the tool with rendered parameters. The run context is
	// passed for reading prior results and recording scratch state; the
	// returned value is what the engine stores under the stage's aliases.
	Execute(ctx context.Context, params map[string]any, rc *runctx.Map) (any, error)
}

// ExecuteFunc is the signature of a tool body used with NewFunc.
type ExecuteFunc func(ctx context.Context, params map[string]any, rc *runctx.Map) (any, error)

// funcTool adapts a bare function into a Tool.
type funcTool struct {
	name string
	meta Meta
	fn   ExecuteFunc
}

// Compile-time check that funcTool implements Tool.
var _ Tool = (*funcTool)(nil)

// NewFunc wraps fn as a Tool with the given name and metadata.
func NewFunc(name string, meta Meta, fn ExecuteFunc) Tool {
	return &funcTool{name: name, meta: meta, fn: fn}
}

func (f *funcTool) Name() string { return f.name }
func (f *funcTool) Meta() Meta   { return f.meta }

func (f *funcTool) Execute(ctx context.Context, params map[string]any, rc *runctx.Map) (any, error) {
	return f.fn(ctx, params, rc)
}

// Registry maps tool names to their implementations. Registration is
// expected to occur at host initialization time (single-threaded), so no
// mutex is needed; after that the registry is read-only and shared across
// concurrent runs.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a new, empty Registry ready for tool registration.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds t to the registry, keyed by t.Name(). It panics if t is
// nil, if t.Name() returns an empty string, or if a tool with the same name
// has already been registered. These are all programming errors that should
// be caught at startup.
func (r *Registry) Register(t Tool) {
	if t == nil {
		panic("tool: Register called with nil tool")
	}
	name := t.Name()
	if name == "" {
		panic("tool: Register called with tool that returns empty name")
	}
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool: %q is already registered", name))
	}
	r.tools[name] = t
}

// Get returns the tool registered under name. It returns ErrToolNotFound
// (wrapped with the tool name) if no tool has been registered for name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}
	return t, nil
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// List returns the names of all registered tools in alphabetical order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

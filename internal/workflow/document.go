// Package workflow implements the staged workflow form: a named document of
// ordered stages whose actions invoke tools against a shared run context,
// and the engine that executes it under approval and policy gates.
//
// The staged form is the operator-facing one (YAML or JSON, conditions,
// approvals); the dependency-graph form compiled into attested plans lives
// in internal/plan.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/w3rt/w3rt/internal/expr"
)

// Trigger values a document may declare.
const (
	TriggerManual = "manual"
	TriggerCron   = "cron"
)

// Stage types. Approval stages gate on conditions and a human decision;
// every other type executes its actions in order.
const (
	StageAnalysis   = "analysis"
	StageSimulation = "simulation"
	StageApproval   = "approval"
	StageExecution  = "execution"
	StageMonitor    = "monitor"
)

// Schema error codes.
const (
	ErrMissingField     = "MISSING_FIELD"
	ErrInvalidType      = "INVALID_TYPE"
	ErrInvalidTrigger   = "INVALID_TRIGGER"
	ErrInvalidStageType = "INVALID_STAGE_TYPE"
	ErrEmptyStages      = "EMPTY_STAGES"
	ErrEmptyActions     = "EMPTY_ACTIONS"
)

// SchemaError reports a structural defect in a workflow document.
type SchemaError struct {
	Code  string
	Field string
	msg   string
}

func (e *SchemaError) Error() string { return e.msg }

func schemaErr(code, field, format string, args ...any) *SchemaError {
	return &SchemaError{Code: code, Field: field, msg: fmt.Sprintf(format, args...)}
}

// Document is a staged workflow. Stages run in source order; each stage
// either executes actions or, for approval stages, gates the run on
// conditions and an approval decision.
type Document struct {
	Name        string  `json:"name" yaml:"name"`
	Version     string  `json:"version" yaml:"version"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Trigger     string  `json:"trigger" yaml:"trigger"`
	Stages      []Stage `json:"stages" yaml:"stages"`
}

// Stage is one phase of a workflow. When is an optional condition gating
// the whole stage; a false evaluation skips it without failing the run.
type Stage struct {
	Name     string    `json:"name" yaml:"name"`
	Type     string    `json:"type" yaml:"type"`
	When     string    `json:"when,omitempty" yaml:"when,omitempty"`
	Actions  []Action  `json:"actions,omitempty" yaml:"actions,omitempty"`
	Approval *Approval `json:"approval,omitempty" yaml:"approval,omitempty"`
}

// Action names a tool and its parameters. Parameter strings may carry
// {{ path }} templates resolved against the run context at execution time.
type Action struct {
	Tool   string         `json:"tool" yaml:"tool"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Approval configures an approval stage. Conditions are evaluated first and
// all must hold; Required additionally demands an explicit approval
// decision from the configured handler.
type Approval struct {
	Required   bool     `json:"required" yaml:"required"`
	Conditions []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// validTriggers and validStageTypes are the closed sets the schema accepts.
var (
	validTriggers   = map[string]bool{TriggerManual: true, TriggerCron: true}
	validStageTypes = map[string]bool{
		StageAnalysis:   true,
		StageSimulation: true,
		StageApproval:   true,
		StageExecution:  true,
		StageMonitor:    true,
	}
)

// Parse decodes a staged workflow document from JSON or YAML. Decode-level
// type mismatches surface as INVALID_TYPE schema errors; syntax errors are
// returned as-is.
func Parse(data []byte) (*Document, error) {
	var doc Document
	jsonErr := json.Unmarshal(data, &doc)
	if jsonErr == nil {
		return &doc, nil
	}
	if looksLikeJSON(data) {
		var typeErr *json.UnmarshalTypeError
		if errors.As(jsonErr, &typeErr) {
			return nil, schemaErr(ErrInvalidType, typeErr.Field,
				"field %s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return nil, fmt.Errorf("parse workflow: %w", jsonErr)
	}

	doc = Document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return nil, schemaErr(ErrInvalidType, "", "%s", strings.Join(typeErr.Errors, "; "))
		}
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	return &doc, nil
}

// looksLikeJSON reports whether the payload starts with a JSON object or
// array, which decides whose error we surface when both decoders fail.
func looksLikeJSON(data []byte) bool {
	trimmed := strings.TrimLeftFunc(string(data), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// CheckSchema validates the document's structure and returns the first
// violation as a *SchemaError. Conditions (when clauses and approval
// conditions) are parse-checked here so a typo fails validation instead of
// a live run.
func (d *Document) CheckSchema() error {
	if d.Name == "" {
		return schemaErr(ErrMissingField, "name", "workflow is missing required field: name")
	}
	if d.Version == "" {
		return schemaErr(ErrMissingField, "version", "workflow is missing required field: version")
	}
	if d.Trigger == "" {
		return schemaErr(ErrMissingField, "trigger", "workflow is missing required field: trigger")
	}
	if !validTriggers[d.Trigger] {
		return schemaErr(ErrInvalidTrigger, "trigger",
			"invalid trigger %q: must be one of manual, cron", d.Trigger)
	}
	if len(d.Stages) == 0 {
		return schemaErr(ErrEmptyStages, "stages", "workflow has no stages")
	}

	for i := range d.Stages {
		stage := &d.Stages[i]
		field := fmt.Sprintf("stages[%d]", i)
		if stage.Name == "" {
			return schemaErr(ErrMissingField, field+".name", "stage %d is missing required field: name", i)
		}
		if stage.Type == "" {
			return schemaErr(ErrMissingField, field+".type", "stage %q is missing required field: type", stage.Name)
		}
		if !validStageTypes[stage.Type] {
			return schemaErr(ErrInvalidStageType, field+".type",
				"stage %q has invalid type %q: must be one of analysis, simulation, approval, execution, monitor",
				stage.Name, stage.Type)
		}
		if stage.When != "" {
			if _, err := expr.Parse(stage.When); err != nil {
				return schemaErr(ErrInvalidType, field+".when",
					"stage %q has an invalid when condition: %v", stage.Name, err)
			}
		}

		if stage.Type == StageApproval {
			if stage.Approval == nil {
				return schemaErr(ErrMissingField, field+".approval",
					"approval stage %q is missing required field: approval", stage.Name)
			}
			for j, cond := range stage.Approval.Conditions {
				if _, err := expr.Parse(cond); err != nil {
					return schemaErr(ErrInvalidType, fmt.Sprintf("%s.approval.conditions[%d]", field, j),
						"stage %q has an invalid approval condition: %v", stage.Name, err)
				}
			}
			continue
		}

		if len(stage.Actions) == 0 {
			return schemaErr(ErrEmptyActions, field+".actions", "stage %q has no actions", stage.Name)
		}
		for j := range stage.Actions {
			if stage.Actions[j].Tool == "" {
				return schemaErr(ErrMissingField, fmt.Sprintf("%s.actions[%d].tool", field, j),
					"stage %q action %d is missing required field: tool", stage.Name, j)
			}
		}
	}
	return nil
}

// LoadFile reads, parses, and schema-checks a staged workflow document.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", path, err)
	}
	if err := doc.CheckSchema(); err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", path, err)
	}
	return doc, nil
}

// Discover lists workflow document paths under dir, any depth, sorted. Only
// file extension is checked; callers parse and schema-check each hit.
func Discover(dir string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{yaml,yml,json}")
	if err != nil {
		return nil, fmt.Errorf("discover workflows: %w", err)
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(dir, filepath.FromSlash(m))
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		paths = append(paths, full)
	}
	sort.Strings(paths)
	return paths, nil
}

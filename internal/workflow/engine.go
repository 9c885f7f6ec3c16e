package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/w3rt/w3rt/internal/expr"
	"github.com/w3rt/w3rt/internal/runctx"
	"github.com/w3rt/w3rt/internal/tool"
	"github.com/w3rt/w3rt/internal/trace"
)

// ApprovalHandler decides an approval stage. Returning false rejects the
// run; an error is treated as a rejection carrying the error's message.
type ApprovalHandler func(ctx context.Context, stage *Stage, rc *runctx.Map) (bool, error)

// PolicyVerdict is the outcome of a policy check on one prospective tool
// call. Decision may carry the checker's full decision record for the
// trace; the engine only routes on Allowed.
type PolicyVerdict struct {
	Allowed  bool
	Reason   string
	Decision any
}

// PolicyChecker is consulted before every broadcast-tagged tool call.
type PolicyChecker func(ctx context.Context, tl tool.Tool, params map[string]any, rc *runctx.Map) (PolicyVerdict, error)

// StageCallbacks are per-stage and per-action hooks. Nil fields are
// skipped. OnActionEnd fires on every path that follows OnActionStart,
// including policy denials and tool failures.
type StageCallbacks struct {
	OnStageStart  func(stage *Stage)
	OnStageEnd    func(stage *Stage, err error)
	OnActionStart func(stage *Stage, action *Action, params map[string]any)
	OnActionEnd   func(stage *Stage, action *Action, result any, err error)
}

// Recorder is the slice of the trace store the engine writes through.
// *trace.Store satisfies it.
type Recorder interface {
	Emit(e trace.Event) (trace.Event, error)
	WriteArtifact(runID, name string, v any) (*trace.ArtifactRef, error)
}

// Compile-time check that the trace store satisfies Recorder.
var _ Recorder = (*trace.Store)(nil)

// RunResult is what a run leaves behind: its id, the final context
// snapshot, and the typed error when it failed.
type RunResult struct {
	OK      bool
	RunID   string
	Context map[string]any
	Err     *RunError
}

// Engine executes staged workflow documents. Side effects are mediated
// entirely through its configuration: the tool registry, the trace
// recorder, the approval handler, and the policy checker. A single engine
// is safe for concurrent runs; per-run state never leaves Run.
type Engine struct {
	registry  *tool.Registry
	rec       Recorder
	logger    *log.Logger
	approval  ApprovalHandler
	policy    PolicyChecker
	callbacks StageCallbacks
	newRunID  func() string
}

// Option configures the Engine.
type Option func(*Engine)

// WithTrace attaches a trace recorder. Without one the engine runs
// untraced, which is only appropriate in tests.
func WithTrace(rec Recorder) Option {
	return func(e *Engine) { e.rec = rec }
}

// WithLogger attaches a charmbracelet/log Logger to the engine. When nil
// the engine operates silently.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithApprovalHandler sets the decision hook for approval stages. Without
// one, any required approval fails the run.
func WithApprovalHandler(h ApprovalHandler) Option {
	return func(e *Engine) { e.approval = h }
}

// WithPolicyChecker sets the gate consulted before broadcast tool calls.
// Without one, broadcast tools run unchecked.
func WithPolicyChecker(p PolicyChecker) Option {
	return func(e *Engine) { e.policy = p }
}

// WithStageCallbacks installs per-stage and per-action hooks.
func WithStageCallbacks(cb StageCallbacks) Option {
	return func(e *Engine) { e.callbacks = cb }
}

// WithRunID overrides run id allocation. Useful in tests that need stable
// ids.
func WithRunID(fn func() string) Option {
	return func(e *Engine) { e.newRunID = fn }
}

// New creates a workflow engine with the given tool registry and options.
// The registry must not be nil.
func New(registry *tool.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		newRunID: trace.NewRunID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run bundles the per-run state threaded through stage execution.
type run struct {
	id  string
	doc *Document
	rc  *runctx.Map
	seq int
}

// Run executes doc against a fresh run context seeded with initial. It
// returns a result in every case; the error return is the result's Err and
// is nil exactly when the run completed. Cancellation is observed between
// actions only, never mid-tool.
func (e *Engine) Run(ctx context.Context, doc *Document, initial map[string]any) (*RunResult, error) {
	r := &run{
		id:  e.newRunID(),
		doc: doc,
		rc:  runctx.FromMap(initial),
	}
	r.rc.Set("__runId", r.id)
	r.rc.Set("__workflow", doc.Name)

	e.emit(trace.Event{
		Type:  trace.EventRunStarted,
		RunID: r.id,
		Data:  map[string]any{"workflow": doc.Name, "trigger": doc.Trigger},
	})
	e.log("run started", "workflow", doc.Name, "runId", r.id)

	err := e.runStages(ctx, r)

	result := &RunResult{RunID: r.id, Context: r.rc.Snapshot()}
	if err != nil {
		result.Err = asRunError(err)
		e.emit(trace.Event{
			Type:   trace.EventRunFinished,
			RunID:  r.id,
			StepID: result.Err.Stage,
			Data:   map[string]any{"ok": false, "error": result.Err.Error(), "code": result.Err.Code},
		})
		e.log("run failed", "workflow", doc.Name, "runId", r.id, "code", result.Err.Code, "error", result.Err)
		return result, result.Err
	}

	result.OK = true
	e.emit(trace.Event{
		Type:  trace.EventRunFinished,
		RunID: r.id,
		Data:  map[string]any{"ok": true},
	})
	e.log("run finished", "workflow", doc.Name, "runId", r.id)
	return result, nil
}

// runStages walks the stages in source order, honoring when gates and
// cancellation between stages.
func (e *Engine) runStages(ctx context.Context, r *run) error {
	for i := range r.doc.Stages {
		stage := &r.doc.Stages[i]

		if err := ctx.Err(); err != nil {
			return runErrf(CodeCancelled, stage.Name, "", err, "cancelled before stage %q", stage.Name)
		}

		if stage.When != "" {
			ok, err := expr.EvalString(stage.When, r.rc)
			if err != nil {
				return runErrf(CodeToolFailure, stage.Name, "", err,
					"stage %q: invalid when condition: %v", stage.Name, err)
			}
			if !ok {
				e.emit(trace.Event{
					Type:   trace.EventStepStarted,
					RunID:  r.id,
					StepID: stage.Name,
					Data:   map[string]any{"type": stage.Type, "when": stage.When},
				})
				e.emit(trace.Event{
					Type:   trace.EventStepFinished,
					RunID:  r.id,
					StepID: stage.Name,
					Data:   map[string]any{"ok": true, "skipped": true},
				})
				e.log("stage skipped", "stage", stage.Name, "when", stage.When)
				continue
			}
		}

		if e.callbacks.OnStageStart != nil {
			e.callbacks.OnStageStart(stage)
		}
		e.emit(trace.Event{
			Type:   trace.EventStepStarted,
			RunID:  r.id,
			StepID: stage.Name,
			Data:   map[string]any{"type": stage.Type},
		})
		e.log("stage started", "stage", stage.Name, "type", stage.Type)

		var stageErr error
		if stage.Type == StageApproval {
			stageErr = e.runApproval(ctx, r, stage)
		} else {
			stageErr = e.runActions(ctx, r, stage)
		}

		if e.callbacks.OnStageEnd != nil {
			e.callbacks.OnStageEnd(stage, stageErr)
		}
		if stageErr != nil {
			e.emit(trace.Event{
				Type:   trace.EventStepFinished,
				RunID:  r.id,
				StepID: stage.Name,
				Data:   map[string]any{"ok": false, "error": stageErr.Error()},
			})
			e.log("stage failed", "stage", stage.Name, "error", stageErr)
			return stageErr
		}
		e.emit(trace.Event{
			Type:   trace.EventStepFinished,
			RunID:  r.id,
			StepID: stage.Name,
			Data:   map[string]any{"ok": true},
		})
		e.log("stage finished", "stage", stage.Name)
	}
	return nil
}

// runApproval gates the run on the stage's conditions and, when required,
// the approval handler's decision.
func (e *Engine) runApproval(ctx context.Context, r *run, stage *Stage) error {
	approval := stage.Approval
	if approval == nil {
		// Schema-checked documents never get here; treat a bare approval
		// stage as an always-required approval.
		approval = &Approval{Required: true}
	}

	for _, cond := range approval.Conditions {
		ok, err := expr.EvalString(cond, r.rc)
		if err != nil {
			return runErrf(CodeToolFailure, stage.Name, "", err,
				"stage %q: invalid approval condition: %v", stage.Name, err)
		}
		if !ok {
			return runErrf(CodeApprovalConditionsFailed, stage.Name, "", nil,
				"approval conditions not met at stage %q: %s", stage.Name, cond)
		}
	}

	if !approval.Required {
		e.log("approval not required", "stage", stage.Name)
		return nil
	}
	if e.approval == nil {
		return runErrf(CodeNoApprovalHandler, stage.Name, "", nil,
			"no approval handler configured for stage %q", stage.Name)
	}

	approved, err := e.approval(ctx, stage, r.rc)
	if err != nil {
		return runErrf(CodeApprovalRejected, stage.Name, "", err,
			"approval failed at stage %q: %v", stage.Name, err)
	}
	if !approved {
		return runErrf(CodeApprovalRejected, stage.Name, "", nil,
			"approval rejected at stage %q", stage.Name)
	}
	e.log("approved", "stage", stage.Name)
	return nil
}

// runActions executes the stage's actions in declared order, observing
// cancellation between them.
func (e *Engine) runActions(ctx context.Context, r *run, stage *Stage) error {
	for j := range stage.Actions {
		action := &stage.Actions[j]

		if err := ctx.Err(); err != nil {
			return runErrf(CodeCancelled, stage.Name, action.Tool, err,
				"cancelled before action %d of stage %q", j, stage.Name)
		}
		if err := e.runAction(ctx, r, stage, action); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runAction(ctx context.Context, r *run, stage *Stage, action *Action) error {
	tl, err := e.registry.Get(action.Tool)
	if err != nil {
		return runErrf(CodeUnknownTool, stage.Name, action.Tool, err, "Unknown tool: %s", action.Tool)
	}
	meta := tl.Meta()
	params := r.rc.RenderParams(action.Params)
	wallet, _ := params["wallet"].(string)

	if e.callbacks.OnActionStart != nil {
		e.callbacks.OnActionStart(stage, action, params)
	}
	e.emit(trace.Event{
		Type:     trace.EventToolCalled,
		RunID:    r.id,
		StepID:   stage.Name,
		Chain:    meta.Chain,
		Tool:     action.Tool,
		WalletID: wallet,
		Data:     map[string]any{"params": params},
	})
	e.log("tool called", "stage", stage.Name, "tool", action.Tool)

	if meta.SideEffect == tool.SideEffectBroadcast && e.policy != nil {
		if err := e.checkPolicy(ctx, r, stage, action, tl, params, wallet); err != nil {
			if e.callbacks.OnActionEnd != nil {
				e.callbacks.OnActionEnd(stage, action, nil, err)
			}
			return err
		}
	}

	result, execErr := e.safeExecute(ctx, tl, params, r.rc)
	if execErr != nil {
		e.emit(trace.Event{
			Type:     trace.EventToolError,
			RunID:    r.id,
			StepID:   stage.Name,
			Chain:    meta.Chain,
			Tool:     action.Tool,
			WalletID: wallet,
			Data:     map[string]any{"error": execErr.Error()},
		})
		e.log("tool failed", "stage", stage.Name, "tool", action.Tool, "error", execErr)
		failure := runErrf(CodeToolFailure, stage.Name, action.Tool, execErr,
			"tool %s failed at stage %q: %v", action.Tool, stage.Name, execErr)
		if e.callbacks.OnActionEnd != nil {
			e.callbacks.OnActionEnd(stage, action, nil, failure)
		}
		return failure
	}

	result = runctx.Normalize(result)
	alias := conventionalAlias(action.Tool)
	e.storeResult(r, stage, action.Tool, alias, result)

	resultData := map[string]any{"result": result}
	if ref := e.writeResultArtifact(r, action.Tool, result); ref != nil {
		resultData["artifact"] = ref.RefData()
	}
	e.emit(trace.Event{
		Type:     trace.EventToolResult,
		RunID:    r.id,
		StepID:   stage.Name,
		Chain:    meta.Chain,
		Tool:     action.Tool,
		WalletID: wallet,
		Data:     resultData,
	})

	if txType := txEventType(alias); txType != "" {
		e.emit(trace.Event{
			Type:     txType,
			RunID:    r.id,
			StepID:   stage.Name,
			Chain:    meta.Chain,
			Tool:     action.Tool,
			WalletID: wallet,
			Data:     txEventData(result),
		})
	}

	if e.callbacks.OnActionEnd != nil {
		e.callbacks.OnActionEnd(stage, action, result, nil)
	}
	return nil
}

// checkPolicy consults the policy checker and records its decision. Any
// outcome other than an explicit allow blocks the run.
func (e *Engine) checkPolicy(ctx context.Context, r *run, stage *Stage, action *Action, tl tool.Tool, params map[string]any, wallet string) error {
	verdict, err := e.policy(ctx, tl, params, r.rc)

	data := map[string]any{"allowed": verdict.Allowed && err == nil}
	if verdict.Reason != "" {
		data["reason"] = verdict.Reason
	}
	if err != nil {
		data["error"] = err.Error()
	}
	if verdict.Decision != nil {
		data["decision"] = runctx.Normalize(verdict.Decision)
	}
	e.emit(trace.Event{
		Type:     trace.EventPolicyDecision,
		RunID:    r.id,
		StepID:   stage.Name,
		Chain:    tl.Meta().Chain,
		Tool:     action.Tool,
		WalletID: wallet,
		Data:     data,
	})

	if err != nil {
		return runErrf(CodePolicyBlocked, stage.Name, action.Tool, err, "Policy blocked: %v", err)
	}
	if !verdict.Allowed {
		reason := verdict.Reason
		if reason == "" {
			reason = "denied"
		}
		e.log("policy blocked", "stage", stage.Name, "tool", action.Tool, "reason", reason)
		return runErrf(CodePolicyBlocked, stage.Name, action.Tool, nil, "Policy blocked: %s", reason)
	}
	e.log("policy allowed", "stage", stage.Name, "tool", action.Tool)
	return nil
}

// safeExecute calls the tool wrapped in a recover() block so a panicking
// tool is converted to an error rather than crashing the process.
func (e *Engine) safeExecute(ctx context.Context, tl tool.Tool, params map[string]any, rc *runctx.Map) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", tl.Name(), rec)
		}
	}()
	return tl.Execute(ctx, params, rc)
}

// storeResult binds a tool result into the run context under the stage
// name, the tool's short alias, its conventional alias, and any recognized
// domain aliases. Later bindings shadow earlier ones, which mirrors how
// operators expect "the latest quote" to win.
func (e *Engine) storeResult(r *run, stage *Stage, toolName, alias string, result any) {
	r.rc.Set(stage.Name, result)
	if short := strings.TrimPrefix(toolName, "w3rt_"); short != toolName && short != "" {
		r.rc.Set(short, result)
	}
	if alias != "" {
		r.rc.Set(alias, result)
	}
	if m, ok := result.(map[string]any); ok {
		if _, ok := m["profit"]; ok {
			r.rc.Set("opportunity", result)
		}
		if prices, ok := m["prices"]; ok {
			r.rc.Set("prices", prices)
		}
	}
}

// writeResultArtifact persists the result as a per-action artifact. Trace
// failures are logged, never fatal to the run.
func (e *Engine) writeResultArtifact(r *run, toolName string, result any) *trace.ArtifactRef {
	if e.rec == nil {
		return nil
	}
	r.seq++
	name := fmt.Sprintf("%03d-%s", r.seq, strings.TrimPrefix(toolName, "w3rt_"))
	ref, err := e.rec.WriteArtifact(r.id, name, result)
	if err != nil {
		e.logWarn("artifact write failed", "name", name, "error", err)
		return nil
	}
	return ref
}

// conventionalAlias maps a tool name onto the context key its result is
// conventionally stored under, by substring. First match wins; tools
// matching nothing get no conventional alias. The mapping is heuristic and
// can shadow stage-name bindings when a stage shares an alias name.
func conventionalAlias(toolName string) string {
	n := strings.ToLower(toolName)
	switch {
	case strings.Contains(n, "quote"):
		return "quote"
	case strings.Contains(n, "build"):
		return "built"
	case strings.Contains(n, "simulat"):
		return "simulation"
	case strings.Contains(n, "send"), strings.Contains(n, "submit"), strings.Contains(n, "exec"):
		return "submitted"
	case strings.Contains(n, "confirm"):
		return "confirmed"
	}
	return ""
}

// txEventType maps a conventional alias onto the transaction lifecycle
// event mirroring it.
func txEventType(alias string) string {
	switch alias {
	case "built":
		return trace.EventTxBuilt
	case "simulation":
		return trace.EventTxSimulated
	case "submitted":
		return trace.EventTxSubmitted
	case "confirmed":
		return trace.EventTxConfirmed
	}
	return ""
}

// txEventData flattens a map result into event data so consumers can
// correlate transactions by their top-level fields (signature, txB64).
func txEventData(result any) map[string]any {
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": result}
}

// asRunError coerces any error into a *RunError, defaulting unknown errors
// to TOOL_FAILURE.
func asRunError(err error) *RunError {
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	return runErrf(CodeToolFailure, "", "", err, "%v", err)
}

// emit records a trace event, logging (not failing) on recorder errors. A
// nil recorder makes emission a no-op.
func (e *Engine) emit(ev trace.Event) {
	if e.rec == nil {
		return
	}
	if _, err := e.rec.Emit(ev); err != nil {
		e.logWarn("trace emit failed", "type", ev.Type, "error", err)
	}
}

// log writes a structured log message when a logger is attached.
func (e *Engine) log(msg string, kvs ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg, kvs...)
}

func (e *Engine) logWarn(msg string, kvs ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Warn(msg, kvs...)
}

package workflow

import "fmt"

// Run error codes. Every way a run can fail maps to exactly one of these.
const (
	CodeUnknownTool              = "UNKNOWN_TOOL"
	CodeApprovalConditionsFailed = "APPROVAL_CONDITIONS_FAILED"
	CodeApprovalRejected         = "APPROVAL_REJECTED"
	CodeNoApprovalHandler        = "NO_APPROVAL_HANDLER"
	CodePolicyBlocked            = "POLICY_BLOCKED"
	CodeToolFailure              = "TOOL_FAILURE"
	CodeCancelled                = "CANCELLED"
)

// RunError is the typed failure a run terminates with. Stage and Tool are
// set when the failure is attributable to one.
type RunError struct {
	Code  string
	Stage string
	Tool  string
	msg   string
	cause error
}

func (e *RunError) Error() string { return e.msg }

// Unwrap exposes the underlying tool or handler error, when there is one.
func (e *RunError) Unwrap() error { return e.cause }

func runErrf(code, stage, tool string, cause error, format string, args ...any) *RunError {
	return &RunError{
		Code:  code,
		Stage: stage,
		Tool:  tool,
		msg:   fmt.Sprintf(format, args...),
		cause: cause,
	}
}

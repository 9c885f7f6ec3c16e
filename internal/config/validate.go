package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ValidationSeverity classifies a validation finding.
type ValidationSeverity string

const (
	// SeverityError marks a finding that makes the configuration unusable.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning marks a finding the configuration can run with, but
	// that probably deserves attention.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g., "runtime.trace_dir"
	Message  string
}

// ValidationResult collects findings in the order the checks produced them.
type ValidationResult struct {
	Issues []ValidationIssue
}

func (vr *ValidationResult) errorf(field, format string, args ...any) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityError,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (vr *ValidationResult) warnf(field, format string, args ...any) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityWarning,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (vr *ValidationResult) bySeverity(sev ValidationSeverity) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == sev {
			out = append(out, issue)
		}
	}
	return out
}

// HasErrors reports whether any finding is an error.
func (vr *ValidationResult) HasErrors() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any finding is a warning.
func (vr *ValidationResult) HasWarnings() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Errors returns the error-severity findings.
func (vr *ValidationResult) Errors() []ValidationIssue {
	return vr.bySeverity(SeverityError)
}

// Warnings returns the warning-severity findings.
func (vr *ValidationResult) Warnings() []ValidationIssue {
	return vr.bySeverity(SeverityWarning)
}

// validLogLevels is the set of valid values for logging.level.
var validLogLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats is the set of valid values for logging.format.
var validLogFormats = map[string]bool{
	"":     true,
	"text": true,
	"json": true,
}

// Validate checks a resolved configuration: required fields, enum values,
// referenced paths, and TOML keys that decoded into nothing. The meta
// argument carries BurntSushi/toml's decode metadata and may be nil when the
// config did not come from a file. Callers decide via HasErrors whether the
// result is fatal.
func Validate(cfg *Config, meta *toml.MetaData) *ValidationResult {
	vr := &ValidationResult{}

	if cfg == nil {
		vr.errorf("", "configuration is nil")
		return vr
	}

	validateRuntime(vr, &cfg.Runtime)
	validateNetworks(vr, cfg.Networks)
	validateLogging(vr, &cfg.Logging)
	validateUnknownKeys(vr, meta)

	return vr
}

func validateRuntime(vr *ValidationResult, r *RuntimeConfig) {
	if r.TraceDir == "" {
		vr.errorf("runtime.trace_dir", "must not be empty")
	}
	if r.WorkflowsDir == "" {
		vr.errorf("runtime.workflows_dir", "must not be empty")
	}

	if r.WorkflowsDir != "" {
		if _, err := os.Stat(r.WorkflowsDir); err != nil {
			vr.warnf("runtime.workflows_dir", "directory %q does not exist", r.WorkflowsDir)
		}
	}

	// Runs with broadcast tools refuse to start without a policy, so a
	// dangling path is worth flagging before anything executes.
	if r.Policy != "" {
		if _, err := os.Stat(r.Policy); err != nil {
			vr.warnf("runtime.policy", "file %q does not exist", r.Policy)
		}
	}
}

func validateNetworks(vr *ValidationResult, networks map[string]NetworkConfig) {
	for name, network := range networks {
		prefix := "networks." + name

		if network.Enabled && network.RPCURL == "" {
			vr.errorf(prefix+".rpc_url", "must not be empty when the network is enabled")
		}

		// A configured but disabled network with no endpoint is probably a
		// stub someone forgot to finish.
		if !network.Enabled && network.RPCURL == "" {
			vr.warnf(prefix+".rpc_url", "network is configured without an rpc_url")
		}
	}
}

func validateLogging(vr *ValidationResult, l *LoggingConfig) {
	if !validLogLevels[l.Level] {
		vr.errorf("logging.level", "unrecognized level %q; must be one of: debug, info, warn, error, or empty", l.Level)
	}
	if !validLogFormats[l.Format] {
		vr.errorf("logging.format", "unrecognized format %q; must be one of: text, json, or empty", l.Format)
	}
}

// validateUnknownKeys flags TOML keys that did not land in any struct field,
// usually typos or options from a newer or older release.
func validateUnknownKeys(vr *ValidationResult, meta *toml.MetaData) {
	if meta == nil {
		return
	}
	for _, key := range meta.Undecoded() {
		vr.warnf(strings.Join(key, "."), "unknown configuration key")
	}
}

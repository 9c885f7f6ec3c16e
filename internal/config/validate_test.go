package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a config whose paths exist on disk, so Validate
// produces neither errors nor warnings.
func validConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	workflowsDir := filepath.Join(dir, "workflows")
	require.NoError(t, os.MkdirAll(workflowsDir, 0o755))
	policyPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte("{}\n"), 0o644))

	return &Config{
		Runtime: RuntimeConfig{
			TraceDir:     filepath.Join(dir, "trace"),
			WorkflowsDir: workflowsDir,
			Policy:       policyPath,
		},
		Networks: map[string]NetworkConfig{
			"sandbox": {RPCURL: "sandbox://local", Enabled: true},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// issueFields extracts the Field of every issue for containment checks.
func issueFields(issues []ValidationIssue) []string {
	fields := make([]string, 0, len(issues))
	for _, issue := range issues {
		fields = append(fields, issue.Field)
	}
	return fields
}

// --- Validate tests ---

func TestValidate_CleanConfig(t *testing.T) {
	t.Parallel()
	vr := Validate(validConfig(t), nil)
	assert.False(t, vr.HasErrors(), "unexpected errors: %+v", vr.Errors())
	assert.False(t, vr.HasWarnings(), "unexpected warnings: %+v", vr.Warnings())
	assert.Empty(t, vr.Issues)
}

func TestValidate_NilConfig(t *testing.T) {
	t.Parallel()
	vr := Validate(nil, nil)
	require.True(t, vr.HasErrors())
	assert.Contains(t, vr.Errors()[0].Message, "nil")
}

func TestValidate_EmptyTraceDir(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Runtime.TraceDir = ""

	vr := Validate(cfg, nil)
	require.True(t, vr.HasErrors())
	assert.Contains(t, issueFields(vr.Errors()), "runtime.trace_dir")
}

func TestValidate_EmptyWorkflowsDir(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Runtime.WorkflowsDir = ""

	vr := Validate(cfg, nil)
	require.True(t, vr.HasErrors())
	assert.Contains(t, issueFields(vr.Errors()), "runtime.workflows_dir")
}

func TestValidate_MissingWorkflowsDirWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Runtime.WorkflowsDir = filepath.Join(t.TempDir(), "does-not-exist")

	vr := Validate(cfg, nil)
	assert.False(t, vr.HasErrors())
	require.True(t, vr.HasWarnings())
	assert.Contains(t, issueFields(vr.Warnings()), "runtime.workflows_dir")
}

func TestValidate_MissingPolicyFileWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Runtime.Policy = filepath.Join(t.TempDir(), "no-such-policy.json")

	vr := Validate(cfg, nil)
	assert.False(t, vr.HasErrors())
	require.True(t, vr.HasWarnings())
	assert.Contains(t, issueFields(vr.Warnings()), "runtime.policy")
}

func TestValidate_EnabledNetworkNeedsRPCURL(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Networks["mainnet"] = NetworkConfig{Enabled: true}

	vr := Validate(cfg, nil)
	require.True(t, vr.HasErrors())
	assert.Contains(t, issueFields(vr.Errors()), "networks.mainnet.rpc_url")
}

func TestValidate_DisabledNetworkWithoutRPCURLWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Networks["stub"] = NetworkConfig{}

	vr := Validate(cfg, nil)
	assert.False(t, vr.HasErrors())
	require.True(t, vr.HasWarnings())
	assert.Contains(t, issueFields(vr.Warnings()), "networks.stub.rpc_url")
}

func TestValidate_LoggingValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     string
		format    string
		wantField string
	}{
		{"bad level", "verbose", "text", "logging.level"},
		{"bad format", "info", "xml", "logging.format"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			cfg.Logging = LoggingConfig{Level: tt.level, Format: tt.format}

			vr := Validate(cfg, nil)
			require.True(t, vr.HasErrors())
			assert.Contains(t, issueFields(vr.Errors()), tt.wantField)
		})
	}
}

func TestValidate_EmptyLoggingValuesAllowed(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Logging = LoggingConfig{}

	vr := Validate(cfg, nil)
	assert.False(t, vr.HasErrors())
}

func TestValidate_UnknownKeysWarn(t *testing.T) {
	t.Parallel()
	var cfg Config
	md, err := toml.Decode(`
[runtime]
trace_dir = "/tmp/trace"
workflows_dir = "/tmp/workflows"
surprise = 1

[typo_section]
x = 2
`, &cfg)
	require.NoError(t, err)

	vr := Validate(&cfg, &md)
	require.True(t, vr.HasWarnings())
	fields := issueFields(vr.Warnings())
	assert.Contains(t, fields, "runtime.surprise")
	assert.Contains(t, fields, "typo_section.x")
}

func TestValidationResult_Accessors(t *testing.T) {
	t.Parallel()
	vr := &ValidationResult{Issues: []ValidationIssue{
		{Severity: SeverityError, Field: "a", Message: "bad"},
		{Severity: SeverityWarning, Field: "b", Message: "iffy"},
		{Severity: SeverityError, Field: "c", Message: "worse"},
	}}

	assert.True(t, vr.HasErrors())
	assert.True(t, vr.HasWarnings())
	assert.Len(t, vr.Errors(), 2)
	assert.Len(t, vr.Warnings(), 1)
	assert.Equal(t, "b", vr.Warnings()[0].Field)
}

func TestValidationResult_Empty(t *testing.T) {
	t.Parallel()
	vr := &ValidationResult{}
	assert.False(t, vr.HasErrors())
	assert.False(t, vr.HasWarnings())
	assert.Empty(t, vr.Errors())
	assert.Empty(t, vr.Warnings())
}

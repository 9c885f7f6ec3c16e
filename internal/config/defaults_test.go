package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Parallel()
	cfg := NewDefaults()
	require.NotNil(t, cfg)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "TraceDir", got: cfg.Runtime.TraceDir, want: ".w3rt/trace"},
		{name: "WorkflowsDir", got: cfg.Runtime.WorkflowsDir, want: "workflows"},
		{name: "Policy", got: cfg.Runtime.Policy, want: "policy.json"},
		{name: "LogLevel", got: cfg.Logging.Level, want: "info"},
		{name: "LogFormat", got: cfg.Logging.Format, want: "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestNewDefaults_SandboxOnly(t *testing.T) {
	t.Parallel()
	cfg := NewDefaults()
	require.Len(t, cfg.Networks, 1, "only the sandbox network is configured by default")

	sandbox, ok := cfg.Networks["sandbox"]
	require.True(t, ok, "sandbox network should exist by default")
	assert.True(t, sandbox.Enabled)
	assert.Equal(t, "sandbox://local", sandbox.RPCURL)
}

func TestNewDefaults_Validates(t *testing.T) {
	t.Parallel()
	// The built-in defaults must never trip an error-severity check.
	vr := Validate(NewDefaults(), nil)
	assert.False(t, vr.HasErrors(), "defaults must validate cleanly: %+v", vr.Errors())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes content to dir/w3rt.toml and returns the path.
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fullTOML = `
[runtime]
trace_dir = ".w3rt/trace"
workflows_dir = "workflows"
policy = "policy.json"

[networks.sandbox]
rpc_url = "sandbox://local"
enabled = true

[networks.mainnet]
rpc_url = "https://api.mainnet-beta.solana.com"
enabled = false

[logging]
level = "debug"
format = "json"
`

// --- LoadFromFile tests ---

func TestLoadFromFile_ValidFull(t *testing.T) {
	t.Parallel()
	cfg, md, err := LoadFromFile(writeConfig(t, t.TempDir(), fullTOML))
	require.NoError(t, err)

	// Runtime section.
	assert.Equal(t, ".w3rt/trace", cfg.Runtime.TraceDir)
	assert.Equal(t, "workflows", cfg.Runtime.WorkflowsDir)
	assert.Equal(t, "policy.json", cfg.Runtime.Policy)

	// Networks section.
	require.Len(t, cfg.Networks, 2)
	sandbox, ok := cfg.Networks["sandbox"]
	require.True(t, ok, "expected networks.sandbox to exist")
	assert.Equal(t, "sandbox://local", sandbox.RPCURL)
	assert.True(t, sandbox.Enabled)

	mainnet, ok := cfg.Networks["mainnet"]
	require.True(t, ok, "expected networks.mainnet to exist")
	assert.Equal(t, "https://api.mainnet-beta.solana.com", mainnet.RPCURL)
	assert.False(t, mainnet.Enabled)

	// Logging section.
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Metadata should have no undecoded keys for a fully valid config.
	assert.Empty(t, md.Undecoded(), "expected no undecoded keys for a valid config")
}

func TestLoadFromFile_PartialConfig(t *testing.T) {
	t.Parallel()
	cfg, _, err := LoadFromFile(writeConfig(t, t.TempDir(), `
[runtime]
trace_dir = "/var/lib/w3rt/trace"
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/w3rt/trace", cfg.Runtime.TraceDir)

	// Fields not in file should be zero-valued.
	assert.Empty(t, cfg.Runtime.WorkflowsDir)
	assert.Empty(t, cfg.Runtime.Policy)
	assert.Nil(t, cfg.Networks)
	assert.Empty(t, cfg.Logging.Level)
}

func TestLoadFromFile_MalformedTOML(t *testing.T) {
	t.Parallel()
	_, _, err := LoadFromFile(writeConfig(t, t.TempDir(), "[runtime\ntrace_dir ="))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestLoadFromFile_NonExistentFile(t *testing.T) {
	t.Parallel()
	_, _, err := LoadFromFile("/nonexistent/path/w3rt.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestLoadFromFile_ReturnsMetadata(t *testing.T) {
	t.Parallel()
	_, md, err := LoadFromFile(writeConfig(t, t.TempDir(), `
[runtime]
trace_dir = ".w3rt/trace"
unknown_key = "value"

[unknown_section]
foo = "bar"
`))
	require.NoError(t, err)

	undecoded := md.Undecoded()
	require.NotEmpty(t, undecoded, "expected undecoded keys for config with unknown keys")

	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	assert.Contains(t, keys, "runtime.unknown_key")
	assert.Contains(t, keys, "unknown_section.foo")
}

func TestLoadFromFile_EmptyFile(t *testing.T) {
	t.Parallel()
	cfg, _, err := LoadFromFile(writeConfig(t, t.TempDir(), ""))
	require.NoError(t, err)

	// All fields should be zero values.
	assert.Empty(t, cfg.Runtime.TraceDir)
	assert.Nil(t, cfg.Networks)
	assert.Empty(t, cfg.Logging.Level)
}

func TestLoadFromFile_CommentsOnly(t *testing.T) {
	t.Parallel()
	cfg, _, err := LoadFromFile(writeConfig(t, t.TempDir(), "# just a comment\n# another\n"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Runtime.TraceDir)
	assert.Nil(t, cfg.Networks)
}

func TestLoadFromFile_SpecialNetworkNames(t *testing.T) {
	t.Parallel()
	cfg, _, err := LoadFromFile(writeConfig(t, t.TempDir(), `
[networks.mainnet-beta]
rpc_url = "https://example.com"
enabled = false

[networks."devnet.eu"]
rpc_url = "https://eu.example.com"
enabled = true
`))
	require.NoError(t, err)
	require.Len(t, cfg.Networks, 2)

	_, hasHyphen := cfg.Networks["mainnet-beta"]
	_, hasDot := cfg.Networks["devnet.eu"]
	assert.True(t, hasHyphen, "expected network with hyphen in name")
	assert.True(t, hasDot, "expected network with dot in name")
}

// --- FindConfigFile tests ---

func TestFindConfigFile_InCurrentDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("# test\n"), 0o644))

	found, err := FindConfigFile(dir)
	require.NoError(t, err)
	assert.Equal(t, configPath, found)
}

func TestFindConfigFile_InParentDir(t *testing.T) {
	t.Parallel()
	parent := t.TempDir()
	child := filepath.Join(parent, "sub", "deep")
	require.NoError(t, os.MkdirAll(child, 0o755))

	configPath := filepath.Join(parent, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("# test\n"), 0o644))

	found, err := FindConfigFile(child)
	require.NoError(t, err)
	assert.Equal(t, configPath, found)
}

func TestFindConfigFile_NotFound(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	found, err := FindConfigFile(dir)
	require.NoError(t, err)
	assert.Empty(t, found, "expected empty string when config not found")
}

func TestFindConfigFile_AtRoot(t *testing.T) {
	t.Parallel()
	// Start from filesystem root -- should not infinite loop, returns empty.
	found, err := FindConfigFile("/")
	require.NoError(t, err)
	// Unless someone has /w3rt.toml on their machine, this should be empty.
	// We just verify no error or infinite loop.
	_ = found
}

func TestFindConfigFile_DeeplyNested(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	// Create a 25-level deep directory tree.
	deepPath := root
	for i := 0; i < 25; i++ {
		deepPath = filepath.Join(deepPath, "level")
	}
	require.NoError(t, os.MkdirAll(deepPath, 0o755))

	// Place config at root.
	configPath := filepath.Join(root, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("# deep test\n"), 0o644))

	found, err := FindConfigFile(deepPath)
	require.NoError(t, err)
	assert.Equal(t, configPath, found)
}

func TestFindConfigFile_ReturnsAbsolutePath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("# test\n"), 0o644))

	found, err := FindConfigFile(dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(found), "expected absolute path, got %s", found)
}

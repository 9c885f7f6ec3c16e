package e2e_test

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// testProject is an isolated project directory with its own w3rt binary,
// config, workflows, and trace store.
type testProject struct {
	Dir        string
	BinaryPath string
	t          *testing.T
}

// newTestProject builds the w3rt binary into a fresh temp directory and
// returns a testProject ready for use. Must be called from a test function;
// uses t.Helper() to mark itself accordingly.
func newTestProject(t *testing.T) *testProject {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("E2E tests assume POSIX binary naming")
	}

	dir := t.TempDir()

	// Build the w3rt binary into the temp dir.
	binary := filepath.Join(dir, "w3rt")
	build := exec.Command("go", "build", "-o", binary, "./cmd/w3rt")
	build.Dir = projectRoot()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "building w3rt: %s", string(out))

	return &testProject{Dir: dir, BinaryPath: binary, t: t}
}

// projectRoot returns the absolute path to the root of the w3rt repository.
// It uses runtime.Caller(0) to find this source file's location and navigates
// two directories up (tests/e2e/ -> tests/ -> repo root).
func projectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	// thisFile is <repo>/tests/e2e/helpers_test.go; root is two dirs up.
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}

// writeConfig writes content to w3rt.toml in tp.Dir.
func (tp *testProject) writeConfig(content string) {
	tp.t.Helper()
	err := os.WriteFile(filepath.Join(tp.Dir, "w3rt.toml"), []byte(content), 0o644)
	require.NoError(tp.t, err)
}

// writeFile writes content to rel under tp.Dir, creating parent directories.
func (tp *testProject) writeFile(rel, content string) string {
	tp.t.Helper()
	path := filepath.Join(tp.Dir, rel)
	require.NoError(tp.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tp.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// readJSONFile decodes a JSON file under tp.Dir into v.
func (tp *testProject) readJSONFile(rel string, v any) {
	tp.t.Helper()
	data, err := os.ReadFile(filepath.Join(tp.Dir, rel))
	require.NoError(tp.t, err)
	require.NoError(tp.t, json.Unmarshal(data, v), "parsing %s", rel)
}

// run creates an exec.Cmd for w3rt running inside the project directory.
func (tp *testProject) run(args ...string) *exec.Cmd {
	cmd := exec.Command(tp.BinaryPath, args...)
	cmd.Dir = tp.Dir
	cmd.Env = append(os.Environ(),
		"NO_COLOR=1",           // disable ANSI color in output
		"W3RT_LOG_FORMAT=json", // structured logs for easier parsing
	)
	return cmd
}

// runExpectSuccess runs w3rt and asserts exit code 0.
// Returns combined stdout+stderr output.
func (tp *testProject) runExpectSuccess(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.NoError(tp.t, err, "w3rt %v failed:\n%s", args, string(out))
	return string(out)
}

// runExpectFailure runs w3rt and asserts a non-zero exit code.
// Returns combined output and the exit code.
func (tp *testProject) runExpectFailure(args ...string) (string, int) {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.Error(tp.t, err, "w3rt %v expected to fail but succeeded:\n%s", args, string(out))
	var exitErr *exec.ExitError
	require.True(tp.t, errors.As(err, &exitErr), "expected *exec.ExitError, got %T: %v", err, err)
	return string(out), exitErr.ExitCode()
}

// scaffold runs "w3rt init" so the project has the starter w3rt.toml,
// policy.json, and workflows. Tests that exercise the full run path start
// from this layout.
func (tp *testProject) scaffold() {
	tp.t.Helper()
	tp.runExpectSuccess("init", "--name", "e2e-project")
}

// minimalConfig returns a minimal w3rt.toml that keeps all state inside the
// project directory.
func minimalConfig() string {
	return `[runtime]
trace_dir = ".w3rt/trace"
workflows_dir = "workflows"
policy = "policy.json"

[networks.sandbox]
rpc_url = "sandbox://local"
enabled = true

[logging]
level = "info"
format = "text"
`
}

// graphWorkflowJSON returns a DAG-form workflow with a quote feeding a swap
// execution. The execution has no simulation dependency, so compiling it
// injects one.
func graphWorkflowJSON() string {
	return `{
  "name": "swap-graph",
  "actions": [
    {
      "id": "quote",
      "tool": "w3rt_swap_quote",
      "params": {"inputMint": "SOL", "outputMint": "USDC", "amount": 1}
    },
    {
      "id": "exec",
      "tool": "w3rt_swap_exec",
      "params": {"confirm": "I_CONFIRM", "amountSol": 0.05},
      "dependsOn": ["quote"]
    }
  ]
}
`
}

// stagedPriceWorkflowYAML returns a staged workflow with no side effects: it
// fetches sandbox prices and derives a figure from them.
func stagedPriceWorkflowYAML() string {
	return `name: price-check
version: "1.0"
trigger: manual
stages:
  - name: fetch
    type: analysis
    actions:
      - tool: get_price
        params:
          symbols: ["SOL", "ETH"]
  - name: size
    type: analysis
    when: "prices.SOL > 90"
    actions:
      - tool: calculate
        params:
          value: "{{ prices.SOL }}"
          multiplier: 0.5
`
}

// planDigest reads a compiled plan file and returns its meta.planHash.
func (tp *testProject) planDigest(rel string) string {
	tp.t.Helper()
	var plan struct {
		Meta struct {
			PlanHash string `json:"planHash"`
		} `json:"meta"`
	}
	tp.readJSONFile(rel, &plan)
	require.NotEmpty(tp.t, plan.Meta.PlanHash, "plan %s has no meta.planHash", rel)
	return plan.Meta.PlanHash
}

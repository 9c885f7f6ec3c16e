package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w3rt/w3rt/internal/chain"
	"github.com/w3rt/w3rt/internal/runctx"
)

// execTool is a helper that resolves and runs a sandbox tool.
func execTool(t *testing.T, r *Registry, name string, params map[string]any, rc *runctx.Map) map[string]any {
	t.Helper()
	tl, err := r.Get(name)
	require.NoError(t, err)
	out, err := tl.Execute(context.Background(), params, rc)
	require.NoError(t, err)
	result, ok := out.(map[string]any)
	require.True(t, ok, "tool %s must return an object", name)
	return result
}

func TestSandbox_RegistersFullToolSet(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	assert.Equal(t, []string{
		"calculate",
		"get_price",
		"w3rt_balance",
		"w3rt_swap_build",
		"w3rt_swap_exec",
		"w3rt_swap_quote",
		"w3rt_tx_confirm",
		"w3rt_tx_simulate",
		"wait",
	}, r.List())

	exec, err := r.Get("w3rt_swap_exec")
	require.NoError(t, err)
	assert.Equal(t, SideEffectBroadcast, exec.Meta().SideEffect)
	assert.Equal(t, "solana", exec.Meta().Chain)
}

// ---------------------------------------------------------------------------
// get_price / calculate / wait
// ---------------------------------------------------------------------------

func TestGetPrice_SingleSymbol(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	result := execTool(t, r, "get_price", map[string]any{"symbol": "SOL"}, runctx.New())
	assert.Equal(t, 100.0, result["price"])
	assert.Equal(t, "SOL", result["symbol"])
}

func TestGetPrice_DefaultsToSOL(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	result := execTool(t, r, "get_price", map[string]any{}, runctx.New())
	assert.Equal(t, "SOL", result["symbol"])
}

func TestGetPrice_MultipleSymbols(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	result := execTool(t, r, "get_price", map[string]any{"symbols": []any{"SOL", "USDC"}}, runctx.New())

	prices, ok := result["prices"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 100.0, prices["SOL"])
	assert.Equal(t, 1.0, prices["USDC"])
}

func TestGetPrice_UnknownSymbol(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	tl, err := r.Get("get_price")
	require.NoError(t, err)
	_, err = tl.Execute(context.Background(), map[string]any{"symbol": "DOGE"}, runctx.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOGE")
}

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params map[string]any
		want   float64
	}{
		{"multiply", map[string]any{"value": 100.0, "multiplier": 2.0}, 200},
		{"default multiplier", map[string]any{"value": 7.0}, 7},
		{"rendered string value", map[string]any{"value": "100", "multiplier": 2.0}, 200},
		{"add", map[string]any{"value": 10.0, "add": 5.0}, 15},
		{"empty", map[string]any{}, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Sandbox(chain.NewSandbox())
			result := execTool(t, r, "calculate", tt.params, runctx.New())
			assert.Equal(t, tt.want, result["result"])
		})
	}
}

func TestCalculate_RejectsNonNumeric(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	tl, err := r.Get("calculate")
	require.NoError(t, err)
	_, err = tl.Execute(context.Background(), map[string]any{"value": "not a number"}, runctx.New())
	assert.Error(t, err)
}

func TestWait_HonorsBounds(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	result := execTool(t, r, "wait", map[string]any{"ms": 1.0}, runctx.New())
	assert.Equal(t, 1.0, result["waitedMs"])

	tl, err := r.Get("wait")
	require.NoError(t, err)
	_, err = tl.Execute(context.Background(), map[string]any{"ms": -1.0}, runctx.New())
	assert.Error(t, err)
	_, err = tl.Execute(context.Background(), map[string]any{"ms": float64(maxWaitMs + 1)}, runctx.New())
	assert.Error(t, err)
}

func TestWait_Cancellation(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	tl, err := r.Get("wait")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tl.Execute(ctx, map[string]any{"ms": float64(maxWaitMs)}, runctx.New())
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// Swap pipeline: quote -> build -> simulate -> exec -> confirm
// ---------------------------------------------------------------------------

func TestSwapQuote(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	result := execTool(t, r, "w3rt_swap_quote", map[string]any{
		"inputMint":  "SOL",
		"outputMint": "USDC",
		"amount":     2.0,
	}, runctx.New())

	assert.Equal(t, 100.0, result["price"])
	assert.Equal(t, 200.0, result["outAmount"])
	assert.Equal(t, 2.0, result["inAmount"])
}

func TestSwapBuild_ProducesDecodableTx(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	result := execTool(t, r, "w3rt_swap_build", map[string]any{"slippageBps": 35.0}, runctx.New())

	txB64, ok := result["txB64"].(string)
	require.True(t, ok)
	tx, ok := chain.DecodeSandboxTx(txB64)
	require.True(t, ok)
	assert.Equal(t, []string{chain.SandboxProgramID}, tx.Programs)
	assert.EqualValues(t, 35, tx.SlippageBps)
	assert.Empty(t, tx.FailReason)
}

func TestSimulate_RecordsProgramsInContext(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	rc := runctx.New()
	built := execTool(t, r, "w3rt_swap_build", map[string]any{"slippageBps": 20.0}, rc)
	result := execTool(t, r, "w3rt_tx_simulate", map[string]any{"txB64": built["txB64"]}, rc)

	assert.Equal(t, true, result["ok"])
	assert.Equal(t, 20.0, result["slippageBps"])
	assert.NotEmpty(t, result["logs"])

	known, ok := rc.Get("programs.known")
	require.True(t, ok)
	assert.Equal(t, true, known)
	ids, ok := rc.Get("programs.ids")
	require.True(t, ok)
	assert.Equal(t, []any{chain.SandboxProgramID}, ids)
}

func TestSimulate_ReportsIntendedFailure(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	rc := runctx.New()
	built := execTool(t, r, "w3rt_swap_build", map[string]any{"failSimulation": true}, rc)
	result := execTool(t, r, "w3rt_tx_simulate", map[string]any{"txB64": built["txB64"]}, rc)

	assert.Equal(t, false, result["ok"])
	assert.Contains(t, result["err"], "simulation failure")
}

func TestSwapExec_RequiresConfirmToken(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	rc := runctx.New()
	built := execTool(t, r, "w3rt_swap_build", map[string]any{}, rc)

	tl, err := r.Get("w3rt_swap_exec")
	require.NoError(t, err)

	_, err = tl.Execute(context.Background(), map[string]any{"txB64": built["txB64"]}, rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ConfirmToken)

	_, err = tl.Execute(context.Background(), map[string]any{"txB64": built["txB64"], "confirm": "yes"}, rc)
	require.Error(t, err)
}

func TestSwapExec_DeterministicSignature(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	rc := runctx.New()
	built := execTool(t, r, "w3rt_swap_build", map[string]any{}, rc)
	params := map[string]any{"txB64": built["txB64"], "confirm": ConfirmToken}

	a := execTool(t, r, "w3rt_swap_exec", params, rc)
	b := execTool(t, r, "w3rt_swap_exec", params, rc)

	sig, ok := a["signature"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, sig)
	assert.Equal(t, a["signature"], b["signature"])
}

func TestConfirm_EchoesSignature(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	result := execTool(t, r, "w3rt_tx_confirm", map[string]any{"signature": "sbx123"}, runctx.New())
	assert.Equal(t, true, result["confirmed"])
	assert.Equal(t, "sbx123", result["signature"])

	tl, err := r.Get("w3rt_tx_confirm")
	require.NoError(t, err)
	_, err = tl.Execute(context.Background(), map[string]any{}, runctx.New())
	assert.Error(t, err, "confirm without a signature must fail")
}

func TestBalance(t *testing.T) {
	t.Parallel()

	r := Sandbox(chain.NewSandbox())
	result := execTool(t, r, "w3rt_balance", map[string]any{"wallet": "W1"}, runctx.New())
	assert.Equal(t, "W1", result["wallet"])
	assert.Equal(t, 10.0, result["sol"])
}

package tool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/w3rt/w3rt/internal/canonjson"
	"github.com/w3rt/w3rt/internal/chain"
	"github.com/w3rt/w3rt/internal/runctx"
)

// ConfirmToken must appear under params.confirm on every broadcast tool
// call. It is checked again at runtime even though the plan validator
// enforces it statically.
const ConfirmToken = "I_CONFIRM"

// maxWaitMs caps the wait tool so a bad template cannot stall a run.
const maxWaitMs = 30_000

// sandboxPrices is the fixed price table the sandbox quotes from, in USD.
var sandboxPrices = map[string]float64{
	"SOL":  100,
	"ETH":  2500,
	"BTC":  60000,
	"USDC": 1,
	"USDT": 1,
}

// Sandbox returns a registry with the builtin development tool set, all
// chain access going through driver. The set is deterministic and performs
// no network I/O, which makes it suitable for tests and dry runs; production
// hosts register their own tools instead.
func Sandbox(driver chain.Driver) *Registry {
	r := NewRegistry()
	r.Register(NewFunc("get_price", Meta{Action: "price"}, getPrice))
	r.Register(NewFunc("calculate", Meta{Action: "calculate"}, calculate))
	r.Register(NewFunc("wait", Meta{Action: "wait"}, wait))
	r.Register(NewFunc("w3rt_swap_quote",
		Meta{Action: "swap_quote", SideEffect: SideEffectNone, Chain: driver.Chain(), Risk: "low"},
		swapQuote))
	r.Register(NewFunc("w3rt_swap_build",
		Meta{Action: "swap_build", SideEffect: SideEffectNone, Chain: driver.Chain(), Risk: "low"},
		swapBuild))
	r.Register(NewFunc("w3rt_tx_simulate",
		Meta{Action: "simulate", SideEffect: SideEffectNone, Chain: driver.Chain(), Risk: "low"},
		simulateTx(driver)))
	r.Register(NewFunc("w3rt_swap_exec",
		Meta{Action: "swap", SideEffect: SideEffectBroadcast, Chain: driver.Chain(), Risk: "high"},
		swapExec))
	r.Register(NewFunc("w3rt_tx_confirm",
		Meta{Action: "confirm", SideEffect: SideEffectNone, Chain: driver.Chain(), Risk: "low"},
		confirmTx))
	r.Register(NewFunc("w3rt_balance",
		Meta{Action: "balance", SideEffect: SideEffectNone, Chain: driver.Chain(), Risk: "low"},
		balance))
	return r
}

// getPrice returns the sandbox price for one symbol, or the whole table
// under "prices" when params.symbols asks for several.
func getPrice(_ context.Context, params map[string]any, _ *runctx.Map) (any, error) {
	if raw, ok := params["symbols"].([]any); ok {
		prices := make(map[string]any, len(raw))
		for _, s := range raw {
			sym, ok := s.(string)
			if !ok {
				return nil, fmt.Errorf("get_price: symbols must be strings, got %T", s)
			}
			p, err := priceFor(sym)
			if err != nil {
				return nil, err
			}
			prices[sym] = p
		}
		return map[string]any{"prices": prices, "currency": "USD"}, nil
	}

	symbol := strParam(params, "symbol", "SOL")
	price, err := priceFor(symbol)
	if err != nil {
		return nil, err
	}
	return map[string]any{"symbol": symbol, "price": price, "currency": "USD"}, nil
}

func priceFor(symbol string) (float64, error) {
	price, ok := sandboxPrices[symbol]
	if !ok {
		return 0, fmt.Errorf("get_price: unknown symbol %q", symbol)
	}
	return price, nil
}

// calculate multiplies a value, the minimal arithmetic stages need to turn
// a quoted price into a derived figure.
func calculate(_ context.Context, params map[string]any, _ *runctx.Map) (any, error) {
	value, err := numParam(params, "value", 0)
	if err != nil {
		return nil, err
	}
	multiplier, err := numParam(params, "multiplier", 1)
	if err != nil {
		return nil, err
	}
	add, err := numParam(params, "add", 0)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": value*multiplier + add}, nil
}

// wait sleeps for params.ms milliseconds, honoring cancellation.
func wait(ctx context.Context, params map[string]any, _ *runctx.Map) (any, error) {
	ms, err := numParam(params, "ms", 0)
	if err != nil {
		return nil, err
	}
	if ms < 0 {
		return nil, fmt.Errorf("wait: ms must not be negative, got %v", ms)
	}
	if ms > maxWaitMs {
		return nil, fmt.Errorf("wait: ms must not exceed %d, got %v", maxWaitMs, ms)
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return map[string]any{"waitedMs": ms}, nil
}

// swapQuote prices an input/output pair off the sandbox table.
func swapQuote(_ context.Context, params map[string]any, _ *runctx.Map) (any, error) {
	inputMint := strParam(params, "inputMint", "SOL")
	outputMint := strParam(params, "outputMint", "USDC")
	amount, err := numParam(params, "amount", 1)
	if err != nil {
		return nil, err
	}
	slippageBps, err := numParam(params, "slippageBps", 50)
	if err != nil {
		return nil, err
	}

	in, err := priceFor(inputMint)
	if err != nil {
		return nil, fmt.Errorf("w3rt_swap_quote: %w", err)
	}
	out, err := priceFor(outputMint)
	if err != nil {
		return nil, fmt.Errorf("w3rt_swap_quote: %w", err)
	}

	price := in / out
	return map[string]any{
		"inputMint":   inputMint,
		"outputMint":  outputMint,
		"inAmount":    amount,
		"outAmount":   amount * price,
		"price":       price,
		"slippageBps": slippageBps,
		"route":       []any{map[string]any{"venue": "sandbox-amm", "share": 1.0}},
	}, nil
}

// swapBuild fabricates a synthetic transaction for the sandbox driver.
// params.failSimulation makes the later simulation fail, which is how tests
// and dry runs exercise the failure path end to end.
func swapBuild(_ context.Context, params map[string]any, _ *runctx.Map) (any, error) {
	slippageBps, err := numParam(params, "slippageBps", 50)
	if err != nil {
		return nil, err
	}

	programs := []string{chain.SandboxProgramID}
	if raw, ok := params["programs"].([]any); ok {
		programs = programs[:0]
		for _, p := range raw {
			id, ok := p.(string)
			if !ok {
				return nil, fmt.Errorf("w3rt_swap_build: programs must be strings, got %T", p)
			}
			programs = append(programs, id)
		}
	}

	tx := chain.SandboxTx{Programs: programs, SlippageBps: int64(slippageBps)}
	if fail, _ := params["failSimulation"].(bool); fail {
		tx.FailReason = "sandbox: simulation failure requested"
	}
	return map[string]any{
		"txB64":    chain.EncodeSandboxTx(tx),
		"programs": stringsToAny(programs),
	}, nil
}

// simulateTx preflights a built transaction: it simulates it through the
// driver and extracts the program ids it would invoke, recording the
// extraction under "programs" in the run context so the policy gate can
// enforce its allowlist fail-closed.
func simulateTx(driver chain.Driver) ExecuteFunc {
	return func(ctx context.Context, params map[string]any, rc *runctx.Map) (any, error) {
		txB64 := strParam(params, "txB64", "")
		if txB64 == "" {
			return nil, fmt.Errorf("w3rt_tx_simulate: missing params.txB64")
		}
		opts := chain.Opts{RPCURL: strParam(params, "rpcUrl", "")}

		sim, err := driver.SimulateTxB64(ctx, txB64, opts)
		if err != nil {
			return nil, fmt.Errorf("w3rt_tx_simulate: %w", err)
		}
		ids, err := driver.ExtractIDsFromTxB64(ctx, txB64, opts)
		if err != nil {
			return nil, fmt.Errorf("w3rt_tx_simulate: %w", err)
		}
		if rc != nil {
			rc.Set("programs", map[string]any{
				"known": ids.Known,
				"ids":   stringsToAny(ids.IDs),
			})
		}

		result := map[string]any{
			"ok":            sim.OK,
			"logs":          stringsToAny(sim.Logs),
			"unitsConsumed": sim.UnitsConsumed,
		}
		if sim.Err != "" {
			result["err"] = sim.Err
		}
		if tx, ok := chain.DecodeSandboxTx(txB64); ok && tx.SlippageBps > 0 {
			result["slippageBps"] = float64(tx.SlippageBps)
		}
		return result, nil
	}
}

// swapExec broadcasts a built transaction. The confirm token is re-checked
// here so a handcrafted document cannot bypass the static plan check.
func swapExec(_ context.Context, params map[string]any, _ *runctx.Map) (any, error) {
	if confirm, _ := params["confirm"].(string); confirm != ConfirmToken {
		return nil, fmt.Errorf("w3rt_swap_exec: params.confirm must be %q", ConfirmToken)
	}
	txB64 := strParam(params, "txB64", "")
	if txB64 == "" {
		return nil, fmt.Errorf("w3rt_swap_exec: missing params.txB64")
	}
	tx, ok := chain.DecodeSandboxTx(txB64)
	if !ok {
		return nil, fmt.Errorf("w3rt_swap_exec: undecodable transaction payload")
	}
	if tx.FailReason != "" {
		return nil, fmt.Errorf("w3rt_swap_exec: transaction reverted: %s", tx.FailReason)
	}

	return map[string]any{
		"signature": sandboxSignature(txB64),
		"slot":      float64(150_000_000),
	}, nil
}

// confirmTx acknowledges a submitted signature.
func confirmTx(_ context.Context, params map[string]any, _ *runctx.Map) (any, error) {
	signature := strParam(params, "signature", "")
	if signature == "" {
		return nil, fmt.Errorf("w3rt_tx_confirm: missing params.signature")
	}
	return map[string]any{
		"signature":     signature,
		"confirmed":     true,
		"slot":          float64(150_000_032),
		"confirmations": float64(32),
	}, nil
}

// balance reports a fixed sandbox balance.
func balance(_ context.Context, params map[string]any, _ *runctx.Map) (any, error) {
	wallet := strParam(params, "wallet", "sandbox")
	lamports := float64(10_000_000_000)
	return map[string]any{
		"wallet":   wallet,
		"lamports": lamports,
		"sol":      lamports / 1e9,
	}, nil
}

// sandboxSignature derives a stable fake signature from the transaction
// bytes so resubmitting the same payload yields the same signature.
func sandboxSignature(txB64 string) string {
	digest := canonjson.DigestBytes([]byte(txB64))
	return "sbx" + digest[len(canonjson.DigestPrefix):][:40]
}

// strParam returns params[key] as a string, or fallback when absent or not
// a string.
func strParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// numParam returns params[key] as a float64, accepting numeric strings
// because templated parameters arrive rendered. Absent keys yield fallback;
// present but non-numeric values are an error.
func numParam(params map[string]any, key string, fallback float64) (float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string:
		if n == "" {
			return fallback, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("param %q: not a number: %q", key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("param %q: not a number: %T", key, v)
	}
}

// stringsToAny widens a string slice for storage in the run context.
func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

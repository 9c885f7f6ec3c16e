package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w3rt/w3rt/internal/runctx"
)

func testContext() *runctx.Map {
	return runctx.FromMap(map[string]any{
		"network": "mainnet",
		"quote": map[string]any{
			"price":       100.0,
			"slippageBps": 50,
			"route":       "direct",
		},
		"simulation": map[string]any{
			"ok":    true,
			"error": nil,
		},
		"dryRun": false,
		"count":  0,
		"tags":   []any{"swap"},
	})
}

// ============================================================================
// Comparison Semantics
// ============================================================================

func TestEvalComparisons(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"string equality", "network == 'mainnet'", true},
		{"string inequality", "network != 'devnet'", true},
		{"string mismatch", "network == 'devnet'", false},
		{"double quoted literal", `network == "mainnet"`, true},
		{"number equality int vs float", "quote.price == 100", true},
		{"number greater", "quote.price > 99.5", true},
		{"number greater equal boundary", "quote.price >= 100", true},
		{"number less", "quote.slippageBps < 100", true},
		{"number less equal", "quote.slippageBps <= 50", true},
		{"number ordering false", "quote.price < 100", false},
		{"negative literal", "quote.price > -1", true},
		{"bool equality", "simulation.ok == true", true},
		{"bool inequality", "dryRun != true", true},
		{"null equality on nil value", "simulation.error == null", true},
		{"null inequality on nil value", "simulation.error != null", false},
		{"defined value not null", "network != null", true},
		{"cross type unequal", "network == 100", false},
		{"cross type not equal", "network != 100", true},
		{"string ordering", "quote.route < 'z'", true},
		{"ordering on bool is false", "simulation.ok > false", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalString(tt.src, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalUndefinedPaths(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"undefined equality is false", "missing.path == 'x'", false},
		{"undefined inequality is false", "missing.path != 'x'", false},
		{"undefined equals null is false", "missing.path == null", false},
		{"undefined not null is true", "missing.path != null", true},
		{"null not undefined is true", "null != missing.path", true},
		{"undefined ordering is false", "missing.path > 1", false},
		{"undefined bare atom is false", "missing.path", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalString(tt.src, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ============================================================================
// Truthiness and Logical Operators
// ============================================================================

func TestEvalTruthiness(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"true bool", "simulation.ok", true},
		{"false bool", "dryRun", false},
		{"non empty string", "network", true},
		{"zero number", "count", false},
		{"non zero number", "quote.price", true},
		{"non empty list", "tags", true},
		{"nil value", "simulation.error", false},
		{"literal true", "true", true},
		{"literal false", "false", false},
		{"literal null", "null", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalString(tt.src, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalLogicalOperators(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"and both true", "network == 'mainnet' && simulation.ok", true},
		{"and one false", "network == 'mainnet' && dryRun", false},
		{"or short circuit", "dryRun || simulation.ok", true},
		{"word operators", "network == 'mainnet' and simulation.ok or dryRun", true},
		{"not operator", "!dryRun", true},
		{"not word operator", "not dryRun", true},
		{"double negation", "!!simulation.ok", true},
		{"not comparison", "!(network == 'devnet')", true},
		{"and binds tighter than or", "dryRun && dryRun || simulation.ok", true},
		{"parens override precedence", "dryRun && (dryRun || simulation.ok)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalString(tt.src, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalStringEmptySourceIsTrue(t *testing.T) {
	got, err := EvalString("   ", testContext())
	require.NoError(t, err)
	assert.True(t, got)
}

// ============================================================================
// Parsing
// ============================================================================

func TestParsePrecedenceShape(t *testing.T) {
	node, err := Parse("a == 1 || b == 2 && c == 3")
	require.NoError(t, err)

	or, ok := node.(Or)
	require.True(t, ok, "top level should be an or")
	_, ok = or.X.(Cmp)
	assert.True(t, ok, "left of or should be a comparison")
	_, ok = or.Y.(And)
	assert.True(t, ok, "right of or should be an and")
}

func TestParseStringEscapes(t *testing.T) {
	node, err := Parse(`name == 'it\'s'`)
	require.NoError(t, err)

	cmp, ok := node.(Cmp)
	require.True(t, ok)
	assert.Equal(t, "it's", cmp.Right.Literal)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unterminated string", "network == 'main"},
		{"single ampersand", "a & b"},
		{"single pipe", "a | b"},
		{"single equals", "a = b"},
		{"trailing garbage", "a == 1 b"},
		{"missing close paren", "(a == 1"},
		{"empty source", ""},
		{"dangling operator", "a =="},
		{"bare minus", "a > -"},
		{"unexpected character", "a == #"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			var perr *ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestNodeString(t *testing.T) {
	node, err := Parse("!(a.b == 'x') && count > 3")
	require.NoError(t, err)
	assert.Equal(t, `(!(a.b == "x") && count > 3)`, node.String())
}

package trace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRun writes a minimal complete trace for runID and returns its events.
func seedRun(t *testing.T, s *Store, runID, chain string) []Event {
	t.Helper()
	var out []Event
	out = append(out, mustEmit(t, s, Event{Type: EventRunStarted, RunID: runID, Data: map[string]any{"workflow": "wf"}}))
	out = append(out, mustEmit(t, s, Event{Type: EventToolCalled, RunID: runID, Chain: chain, Tool: "get_price"}))
	out = append(out, mustEmit(t, s, Event{Type: EventToolResult, RunID: runID, Chain: chain, Tool: "get_price"}))
	out = append(out, mustEmit(t, s, Event{Type: EventRunFinished, RunID: runID, Data: map[string]any{"ok": true}}))
	return out
}

// ---------------------------------------------------------------------------
// ListRuns
// ---------------------------------------------------------------------------

func TestStore_ListRuns_Empty(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	runs, err := s.ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedRun(t, s, "20250101-000000.000-aaaa", "solana")
	seedRun(t, s, "20250103-000000.000-cccc", "solana")
	seedRun(t, s, "20250102-000000.000-bbbb", "solana")

	runs, err := s.ListRuns()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20250103-000000.000-cccc",
		"20250102-000000.000-bbbb",
		"20250101-000000.000-aaaa",
	}, runs)
}

// ---------------------------------------------------------------------------
// LoadRunEvents
// ---------------------------------------------------------------------------

func TestStore_LoadRunEvents_MissingRun(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.LoadRunEvents("nope")
	assert.Error(t, err)
}

func TestStore_LoadRunEvents_BadLine(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedRun(t, s, "run-1", "solana")

	f, err := os.OpenFile(s.TracePath("run-1"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.LoadRunEvents("run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 5")
}

func TestStore_LoadRunEvents_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedRun(t, s, "run-1", "solana")

	f, err := os.OpenFile(s.TracePath("run-1"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := s.LoadRunEvents("run-1")
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

// ---------------------------------------------------------------------------
// QueryEvents
// ---------------------------------------------------------------------------

func TestStore_QueryEvents_Filters(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	first := seedRun(t, s, "20250101-000000.000-aaaa", "solana")
	seedRun(t, s, "20250102-000000.000-bbbb", "evm")

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 8},
		{"by run", Filter{RunID: "20250101-000000.000-aaaa"}, 4},
		{"by type", Filter{Types: []string{EventRunStarted}}, 2},
		{"by type set", Filter{Types: []string{EventRunStarted, EventRunFinished}}, 4},
		{"by chain", Filter{Chain: "evm"}, 2},
		{"by tool", Filter{Tool: "get_price"}, 4},
		{"no match", Filter{Tool: "unknown"}, 0},
		{"limit", Filter{Limit: 3}, 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			events, err := s.QueryEvents(tt.filter)
			require.NoError(t, err)
			assert.Len(t, events, tt.want)
		})
	}

	// Timestamp bounds select the tail of the first run.
	cut := first[2].TS
	events, err := s.QueryEvents(Filter{RunID: "20250101-000000.000-aaaa", Since: cut})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = s.QueryEvents(Filter{RunID: "20250101-000000.000-aaaa", Until: cut - 1})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStore_QueryEvents_NewestRunFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedRun(t, s, "20250101-000000.000-aaaa", "solana")
	seedRun(t, s, "20250102-000000.000-bbbb", "solana")

	events, err := s.QueryEvents(Filter{Types: []string{EventRunStarted}})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "20250102-000000.000-bbbb", events[0].RunID)
	assert.Equal(t, "20250101-000000.000-aaaa", events[1].RunID)
}

package trace

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedReplayRun writes a complete run whose tool result references an
// artifact, mirroring what the engine records.
func seedReplayRun(t *testing.T, s *Store, runID string) {
	t.Helper()
	ref, err := s.WriteArtifact(runID, "quote", map[string]any{"price": 100})
	require.NoError(t, err)

	mustEmit(t, s, Event{Type: EventRunStarted, RunID: runID, Data: map[string]any{"workflow": "swap"}})
	mustEmit(t, s, Event{Type: EventToolResult, RunID: runID, Tool: "get_price", Data: map[string]any{"artifact": ref.RefData()}})
	mustEmit(t, s, Event{Type: EventRunFinished, RunID: runID, Data: map[string]any{"ok": true}})
}

// ---------------------------------------------------------------------------
// Replay
// ---------------------------------------------------------------------------

func TestStore_Replay_WellFormedRun(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedReplayRun(t, s, "run-1")

	report, err := s.Replay("run-1")
	require.NoError(t, err)
	assert.True(t, report.OK, "issues: %v", report.Issues)
	assert.Equal(t, 3, report.Events)
	assert.Equal(t, 1, report.Artifacts)
}

func TestStore_Replay_MissingRun(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Replay("nope")
	assert.Error(t, err)
}

func TestStore_Replay_DetectsTamperedArtifact(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedReplayRun(t, s, "run-1")

	path := s.artifactPath("run-1", "quote")
	require.NoError(t, os.WriteFile(path, []byte(`{"price": 1}`+"\n"), 0o644))

	report, err := s.Replay("run-1")
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "hashes to")
}

func TestStore_Replay_DetectsMissingArtifact(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedReplayRun(t, s, "run-1")
	require.NoError(t, os.Remove(s.artifactPath("run-1", "quote")))

	report, err := s.Replay("run-1")
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0], "not found")
}

func TestStore_Replay_StreamShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		seed  func(t *testing.T, s *Store)
		issue string
	}{
		{
			name: "never finished",
			seed: func(t *testing.T, s *Store) {
				mustEmit(t, s, Event{Type: EventRunStarted, RunID: "run-1"})
				mustEmit(t, s, Event{Type: EventToolCalled, RunID: "run-1"})
			},
			issue: "run.finished",
		},
		{
			name: "started twice",
			seed: func(t *testing.T, s *Store) {
				mustEmit(t, s, Event{Type: EventRunStarted, RunID: "run-1"})
				mustEmit(t, s, Event{Type: EventRunStarted, RunID: "run-1"})
				mustEmit(t, s, Event{Type: EventRunFinished, RunID: "run-1", Data: map[string]any{"ok": true}})
			},
			issue: "2 run.started",
		},
		{
			name: "wrong first event",
			seed: func(t *testing.T, s *Store) {
				mustEmit(t, s, Event{Type: EventToolCalled, RunID: "run-1"})
				mustEmit(t, s, Event{Type: EventRunStarted, RunID: "run-1"})
				mustEmit(t, s, Event{Type: EventRunFinished, RunID: "run-1", Data: map[string]any{"ok": true}})
			},
			issue: "first event",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t)
			tt.seed(t, s)
			report, err := s.Replay("run-1")
			require.NoError(t, err)
			assert.False(t, report.OK)
			found := false
			for _, issue := range report.Issues {
				if strings.Contains(issue, tt.issue) {
					found = true
				}
			}
			assert.True(t, found, "want an issue mentioning %q, got %v", tt.issue, report.Issues)
		})
	}
}

func TestStore_Replay_ForeignRunID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustEmit(t, s, Event{Type: EventRunStarted, RunID: "run-1"})
	mustEmit(t, s, Event{Type: EventRunFinished, RunID: "run-1", Data: map[string]any{"ok": true}})

	// Splice an event from another run into the trace file.
	f, err := os.OpenFile(s.TracePath("run-1"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"x","ts":99999999999999,"type":"run.finished","runId":"run-2","data":{"ok":true}}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	report, err := s.Replay("run-1")
	require.NoError(t, err)
	assert.False(t, report.OK)
}

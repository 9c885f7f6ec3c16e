package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestStore returns a store rooted in a fresh temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

// mustEmit emits an event and fails the test on error.
func mustEmit(t *testing.T, s *Store, e Event) Event {
	t.Helper()
	out, err := s.Emit(e)
	require.NoError(t, err)
	return out
}

// ---------------------------------------------------------------------------
// NewRunID
// ---------------------------------------------------------------------------

func TestNewRunID_SortsByTime(t *testing.T) {
	t.Parallel()

	a := NewRunID()
	time.Sleep(2 * time.Millisecond)
	b := NewRunID()

	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "later run ids must sort after earlier ones")
}

// ---------------------------------------------------------------------------
// Emit
// ---------------------------------------------------------------------------

func TestStore_Emit_AssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	e := mustEmit(t, s, Event{Type: EventRunStarted, RunID: "run-1"})

	assert.NotEmpty(t, e.ID)
	assert.Positive(t, e.TS)
	assert.FileExists(t, s.TracePath("run-1"))
}

func TestStore_Emit_RejectsIncompleteEvents(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.Emit(Event{Type: EventRunStarted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run id")

	_, err = s.Emit(Event{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type")
}

func TestStore_Emit_AppendsOneLinePerEvent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustEmit(t, s, Event{Type: EventRunStarted, RunID: "run-1"})
	mustEmit(t, s, Event{Type: EventToolCalled, RunID: "run-1", Tool: "get_price"})
	mustEmit(t, s, Event{Type: EventRunFinished, RunID: "run-1"})

	data, err := os.ReadFile(s.TracePath("run-1"))
	require.NoError(t, err)

	require.True(t, strings.HasSuffix(string(data), "\n"), "trace must end with a newline")
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		var e Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
	}
}

func TestStore_Emit_TimestampsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	// Freeze the clock so every emit lands in the same millisecond.
	at := time.Now()
	s.now = func() time.Time { return at }

	var last int64
	for i := 0; i < 10; i++ {
		e := mustEmit(t, s, Event{Type: EventToolCalled, RunID: "run-1"})
		assert.Greater(t, e.TS, last)
		last = e.TS
	}
}

func TestStore_Emit_OrderEqualsEmitOrder(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	const runs, perRun = 4, 25

	var wg sync.WaitGroup
	for r := 0; r < runs; r++ {
		runID := fmt.Sprintf("run-%d", r)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perRun; i++ {
				mustEmit(t, s, Event{
					Type:  EventToolCalled,
					RunID: runID,
					Data:  map[string]any{"seq": i},
				})
			}
		}()
	}
	wg.Wait()

	for r := 0; r < runs; r++ {
		events, err := s.LoadRunEvents(fmt.Sprintf("run-%d", r))
		require.NoError(t, err)
		require.Len(t, events, perRun)
		for i, e := range events {
			assert.EqualValues(t, i, e.Data["seq"], "events must appear in emit order")
		}
	}
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

func TestStore_WriteArtifact_ReturnsRef(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ref, err := s.WriteArtifact("run-1", "quote", map[string]any{"price": 100})
	require.NoError(t, err)

	assert.Equal(t, "run-1", ref.RunID)
	assert.Equal(t, "quote", ref.Name)
	assert.True(t, strings.HasPrefix(ref.SHA256, "sha256:"))
	assert.Positive(t, ref.Bytes)
	assert.FileExists(t, ref.Path)

	data, err := s.ReadArtifact("run-1", "quote")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"price"`)
	assert.NoError(t, s.VerifyArtifact(ref))
}

func TestStore_WriteArtifact_OverwriteReplaces(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.WriteArtifact("run-1", "quote", map[string]any{"price": 100})
	require.NoError(t, err)
	ref, err := s.WriteArtifact("run-1", "quote", map[string]any{"price": 250})
	require.NoError(t, err)

	data, err := s.ReadArtifact("run-1", "quote")
	require.NoError(t, err)
	assert.Contains(t, string(data), "250")
	assert.NotContains(t, string(data), "100")
	assert.NoError(t, s.VerifyArtifact(ref))
}

func TestStore_WriteArtifact_RejectsPathNames(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	for _, name := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := s.WriteArtifact("run-1", name, map[string]any{})
		assert.Error(t, err, "name %q must be rejected", name)
	}
}

func TestStore_ReadArtifact_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.ReadArtifact("run-1", "missing")
	require.Error(t, err)

	var serr *StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, ErrArtifactNotFound, serr.Code)
}

func TestStore_VerifyArtifact_DetectsTampering(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ref, err := s.WriteArtifact("run-1", "quote", map[string]any{"price": 100})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(ref.Path, []byte(`{"price": 999}`+"\n"), 0o644))

	err = s.VerifyArtifact(ref)
	require.Error(t, err)
	var serr *StorageError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, ErrHashMismatch, serr.Code)
}

// ---------------------------------------------------------------------------
// ArtifactRef round-trip
// ---------------------------------------------------------------------------

func TestArtifactRef_RefDataRoundTrip(t *testing.T) {
	t.Parallel()

	ref := &ArtifactRef{RunID: "run-1", Name: "quote", Path: "/tmp/x.json", SHA256: "sha256:abc", Bytes: 42}
	got, ok := refFromData(ref.RefData())
	require.True(t, ok)
	assert.Equal(t, ref, got)

	_, ok = refFromData("not a ref")
	assert.False(t, ok)
	_, ok = refFromData(map[string]any{"name": "x"})
	assert.False(t, ok, "a ref without a digest is not a ref")
}

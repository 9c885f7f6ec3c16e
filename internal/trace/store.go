package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/w3rt/w3rt/internal/canonjson"
)

// Storage error codes.
const (
	// ErrArtifactNotFound is reported when a named artifact has no file on
	// disk.
	ErrArtifactNotFound = "ARTIFACT_NOT_FOUND"

	// ErrHashMismatch is reported when an artifact's bytes no longer hash to
	// the digest recorded in its reference.
	ErrHashMismatch = "HASH_MISMATCH"
)

// StorageError describes a failed artifact lookup or verification.
type StorageError struct {
	Code string
	msg  string
}

func (e *StorageError) Error() string { return e.msg }

func storageErr(code, format string, args ...any) *StorageError {
	return &StorageError{Code: code, msg: fmt.Sprintf(format, args...)}
}

// ArtifactRef points at a stored artifact and pins its content digest.
type ArtifactRef struct {
	RunID  string `json:"runId"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
}

// lockStripes bounds the number of mutexes the store allocates. Appends for
// one run id always hash to the same stripe, which serializes them; runs on
// different stripes append independently.
const lockStripes = 32

type stripe struct {
	mu sync.Mutex

	// lastTS tracks the newest timestamp issued per run so emitted events
	// are strictly increasing even within one millisecond.
	lastTS map[string]int64
}

// Store is the append-only trace writer and artifact store for one base
// directory. It is safe for concurrent use across runs; events within a run
// are appended in emit order.
type Store struct {
	base    string
	stripes [lockStripes]stripe
	now     func() time.Time
}

// NewStore creates a store rooted at base. No I/O happens until the first
// emit or artifact write.
func NewStore(base string) *Store {
	s := &Store{base: base, now: time.Now}
	for i := range s.stripes {
		s.stripes[i].lastTS = make(map[string]int64)
	}
	return s
}

// Base returns the store's base directory.
func (s *Store) Base() string { return s.base }

// RunDir returns the directory that holds one run's trace and artifacts.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.base, "runs", runID)
}

// TracePath returns the path of a run's JSONL trace file.
func (s *Store) TracePath(runID string) string {
	return filepath.Join(s.RunDir(runID), "trace.jsonl")
}

func (s *Store) artifactPath(runID, name string) string {
	return filepath.Join(s.RunDir(runID), "artifacts", name+".json")
}

func (s *Store) stripeFor(runID string) *stripe {
	return &s.stripes[xxhash.Sum64String(runID)%lockStripes]
}

// Emit assigns the event a fresh id and a per-run strictly increasing
// millisecond timestamp, then appends it to the run's trace as a single
// newline-terminated write. Parent directories are created on demand. The
// returned event carries the assigned fields.
func (s *Store) Emit(e Event) (Event, error) {
	if e.RunID == "" {
		return e, fmt.Errorf("emit: event has no run id")
	}
	if e.Type == "" {
		return e, fmt.Errorf("emit: event has no type")
	}
	e.ID = uuid.NewString()

	st := s.stripeFor(e.RunID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ts := s.now().UnixMilli()
	if last := st.lastTS[e.RunID]; ts <= last {
		ts = last + 1
	}
	st.lastTS[e.RunID] = ts
	e.TS = ts

	line, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("emit: encode event: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(s.RunDir(e.RunID), 0o755); err != nil {
		return e, fmt.Errorf("emit: %w", err)
	}
	f, err := os.OpenFile(s.TracePath(e.RunID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return e, fmt.Errorf("emit: %w", err)
	}
	_, werr := f.Write(line)
	cerr := f.Close()
	if werr != nil {
		return e, fmt.Errorf("emit: append event: %w", werr)
	}
	if cerr != nil {
		return e, fmt.Errorf("emit: append event: %w", cerr)
	}
	return e, nil
}

// WriteArtifact serializes v as pretty-printed JSON under the run's artifact
// directory and returns a reference carrying the content digest and size.
// Writing the same name again replaces the previous content.
func (s *Store) WriteArtifact(runID, name string, v any) (*ArtifactRef, error) {
	if runID == "" {
		return nil, fmt.Errorf("write artifact: missing run id")
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("write artifact: invalid name %q", name)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", name, err)
	}
	data = append(data, '\n')

	path := s.artifactPath(runID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", name, err)
	}

	return &ArtifactRef{
		RunID:  runID,
		Name:   name,
		Path:   path,
		SHA256: canonjson.DigestBytes(data),
		Bytes:  len(data),
	}, nil
}

// ReadArtifact returns the raw bytes of a named artifact.
func (s *Store) ReadArtifact(runID, name string) ([]byte, error) {
	data, err := os.ReadFile(s.artifactPath(runID, name))
	if os.IsNotExist(err) {
		return nil, storageErr(ErrArtifactNotFound, "artifact %s not found in run %s", name, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// VerifyArtifact re-reads the referenced artifact and checks that its bytes
// still hash to the recorded digest.
func (s *Store) VerifyArtifact(ref *ArtifactRef) error {
	data, err := s.ReadArtifact(ref.RunID, ref.Name)
	if err != nil {
		return err
	}
	if got := canonjson.DigestBytes(data); got != ref.SHA256 {
		return storageErr(ErrHashMismatch, "artifact %s in run %s hashes to %s, reference says %s", ref.Name, ref.RunID, got, ref.SHA256)
	}
	return nil
}

// RefData converts an artifact reference into event data form for embedding
// under a trace event's "artifact" key.
func (r *ArtifactRef) RefData() map[string]any {
	return map[string]any{
		"runId":  r.RunID,
		"name":   r.Name,
		"path":   r.Path,
		"sha256": r.SHA256,
		"bytes":  r.Bytes,
	}
}

// refFromData reverses RefData; ok is false when the value does not look
// like an artifact reference.
func refFromData(v any) (*ArtifactRef, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	name, _ := m["name"].(string)
	sha, _ := m["sha256"].(string)
	if name == "" || sha == "" {
		return nil, false
	}
	ref := &ArtifactRef{Name: name, SHA256: sha}
	ref.RunID, _ = m["runId"].(string)
	ref.Path, _ = m["path"].(string)
	switch b := m["bytes"].(type) {
	case float64:
		ref.Bytes = int(b)
	case int:
		ref.Bytes = b
	}
	return ref, true
}

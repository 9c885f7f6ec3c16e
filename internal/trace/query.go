package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Filter selects events for QueryEvents. Zero values impose no constraint;
// Since and Until are inclusive millisecond bounds.
type Filter struct {
	RunID string
	Types []string
	Chain string
	Tool  string
	Since int64
	Until int64

	// Limit caps the number of returned events; 0 means unlimited.
	Limit int
}

func (f *Filter) matches(e *Event) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Chain != "" && e.Chain != f.Chain {
		return false
	}
	if f.Tool != "" && e.Tool != f.Tool {
		return false
	}
	if f.Since > 0 && e.TS < f.Since {
		return false
	}
	if f.Until > 0 && e.TS > f.Until {
		return false
	}
	return true
}

// ListRuns returns all run ids under the store, newest first. Run ids start
// with a timestamp, so reverse-lexicographic order is reverse-chronological.
// A store that has never recorded a run yields an empty list.
func (s *Store) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.base, "runs"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs, nil
}

// LoadRunEvents streams and parses a run's trace. The returned events are in
// file order, which equals emit order. A line that fails to parse aborts the
// load with an error naming the line number.
func (s *Store) LoadRunEvents(runID string) ([]Event, error) {
	f, err := os.Open(s.TracePath(runID))
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("load run %s: line %d: %w", runID, lineNo, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return events, nil
}

// QueryEvents walks runs newest-first and returns the events matching the
// filter, short-circuiting as soon as the limit is reached. When the filter
// names a run id only that run is read.
func (s *Store) QueryEvents(f Filter) ([]Event, error) {
	var runs []string
	if f.RunID != "" {
		runs = []string{f.RunID}
	} else {
		var err error
		runs, err = s.ListRuns()
		if err != nil {
			return nil, err
		}
	}

	var out []Event
	for _, runID := range runs {
		events, err := s.LoadRunEvents(runID)
		if err != nil {
			return nil, err
		}
		for i := range events {
			if !f.matches(&events[i]) {
				continue
			}
			out = append(out, events[i])
			if f.Limit > 0 && len(out) >= f.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

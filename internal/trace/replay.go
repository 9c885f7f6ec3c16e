package trace

import "fmt"

// ReplayReport is the outcome of a read-only replay validation. Issues lists
// every defect found; OK is true only when the list is empty.
type ReplayReport struct {
	RunID     string   `json:"runId"`
	Events    int      `json:"events"`
	Artifacts int      `json:"artifacts"`
	OK        bool     `json:"ok"`
	Issues    []string `json:"issues,omitempty"`
}

// Replay validates a recorded run without re-executing anything: the event
// stream must be well-formed (exactly one run.started first, exactly one
// run.finished last, unique ids, strictly increasing timestamps), and every
// artifact referenced by an event must still hash to its recorded sha256.
func (s *Store) Replay(runID string) (*ReplayReport, error) {
	events, err := s.LoadRunEvents(runID)
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{RunID: runID, Events: len(events)}
	report.Issues = append(report.Issues, checkStream(runID, events)...)

	for _, e := range events {
		ref, ok := refFromData(e.Data["artifact"])
		if !ok {
			continue
		}
		if ref.RunID == "" {
			ref.RunID = runID
		}
		report.Artifacts++
		if err := s.VerifyArtifact(ref); err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("event %s: %v", e.ID, err))
		}
	}

	report.OK = len(report.Issues) == 0
	return report, nil
}

// checkStream validates event-stream shape: one run.started first, one
// run.finished last, consistent run ids, unique event ids, strictly
// increasing timestamps.
func checkStream(runID string, events []Event) []string {
	if len(events) == 0 {
		return []string{"trace is empty"}
	}

	var issues []string
	if events[0].Type != EventRunStarted {
		issues = append(issues, fmt.Sprintf("first event is %s, want %s", events[0].Type, EventRunStarted))
	}
	if last := events[len(events)-1]; last.Type != EventRunFinished {
		issues = append(issues, fmt.Sprintf("last event is %s, want %s", last.Type, EventRunFinished))
	}

	started, finished := 0, 0
	seen := make(map[string]bool, len(events))
	var prevTS int64
	for i, e := range events {
		switch e.Type {
		case EventRunStarted:
			started++
		case EventRunFinished:
			finished++
		}
		if e.RunID != runID {
			issues = append(issues, fmt.Sprintf("event %d carries run id %q, want %q", i, e.RunID, runID))
		}
		if e.ID == "" {
			issues = append(issues, fmt.Sprintf("event %d has no id", i))
		} else if seen[e.ID] {
			issues = append(issues, fmt.Sprintf("duplicate event id %s", e.ID))
		}
		seen[e.ID] = true
		if i > 0 && e.TS <= prevTS {
			issues = append(issues, fmt.Sprintf("event %d timestamp %d does not advance past %d", i, e.TS, prevTS))
		}
		prevTS = e.TS
	}
	if started != 1 {
		issues = append(issues, fmt.Sprintf("trace has %d run.started events, want exactly 1", started))
	}
	if finished != 1 {
		issues = append(issues, fmt.Sprintf("trace has %d run.finished events, want exactly 1", finished))
	}
	return issues
}

package trace

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// auditConcurrency bounds how many run traces the audit reader loads at once.
const auditConcurrency = 8

// TxRecord summarizes one submitted transaction within a run, correlated
// with its confirmation by signature.
type TxRecord struct {
	Signature   string `json:"signature"`
	Chain       string `json:"chain,omitempty"`
	Tool        string `json:"tool,omitempty"`
	SubmittedTS int64  `json:"submittedTs"`
	Confirmed   bool   `json:"confirmed"`
	ConfirmedTS int64  `json:"confirmedTs,omitempty"`
}

// RunSummary aggregates one run for the audit report.
type RunSummary struct {
	RunID      string `json:"runId"`
	Workflow   string `json:"workflow,omitempty"`
	StartedTS  int64  `json:"startedTs,omitempty"`
	FinishedTS int64  `json:"finishedTs,omitempty"`

	// Status is "ok", "failed", or "incomplete" for runs that never wrote a
	// run.finished event.
	Status string `json:"status"`

	Error        string     `json:"error,omitempty"`
	Chains       []string   `json:"chains,omitempty"`
	Events       int        `json:"events"`
	Transactions []TxRecord `json:"transactions,omitempty"`
}

// AuditReport aggregates every run whose start falls inside the window.
type AuditReport struct {
	FromTS     int64        `json:"fromTs,omitempty"`
	ToTS       int64        `json:"toTs,omitempty"`
	TotalRuns  int          `json:"totalRuns"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	Incomplete int          `json:"incomplete"`
	Chains     []string     `json:"chains,omitempty"`
	Runs       []RunSummary `json:"runs"`

	// ReadErrors lists runs whose traces could not be read. They are
	// reported, not fatal: one corrupt run must not hide the rest.
	ReadErrors []string `json:"readErrors,omitempty"`
}

// GenerateAuditReport builds an audit report over all runs started within
// [from, to] (milliseconds; zero bounds are open). Run traces are read
// concurrently with bounded parallelism; per-run read failures are recorded
// in the report without aborting it.
func (s *Store) GenerateAuditReport(ctx context.Context, from, to int64) (*AuditReport, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return nil, err
	}

	summaries := make([]*RunSummary, len(runs))
	readErrors := make([]string, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(auditConcurrency)

	for i, runID := range runs {
		i, runID := i, runID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			events, err := s.LoadRunEvents(runID)
			if err != nil {
				readErrors[i] = err.Error()
				// Per-run read errors must not abort the report.
				return nil
			}
			summaries[i] = summarizeRun(runID, events)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	report := &AuditReport{FromTS: from, ToTS: to}
	chains := make(map[string]bool)
	for i := range runs {
		if readErrors[i] != "" {
			report.ReadErrors = append(report.ReadErrors, readErrors[i])
			continue
		}
		sum := summaries[i]
		if sum == nil {
			continue
		}
		if from > 0 && sum.StartedTS < from {
			continue
		}
		if to > 0 && sum.StartedTS > to {
			continue
		}
		report.TotalRuns++
		switch sum.Status {
		case "ok":
			report.Succeeded++
		case "failed":
			report.Failed++
		default:
			report.Incomplete++
		}
		for _, c := range sum.Chains {
			chains[c] = true
		}
		report.Runs = append(report.Runs, *sum)
	}

	report.Chains = sortedKeys(chains)
	return report, nil
}

// summarizeRun folds one run's event stream into a summary, correlating
// submissions with confirmations by signature.
func summarizeRun(runID string, events []Event) *RunSummary {
	sum := &RunSummary{RunID: runID, Status: "incomplete", Events: len(events)}
	chains := make(map[string]bool)
	bySignature := make(map[string]int) // signature -> index into sum.Transactions

	for _, e := range events {
		if e.Chain != "" {
			chains[e.Chain] = true
		}
		switch e.Type {
		case EventRunStarted:
			if sum.StartedTS == 0 {
				sum.StartedTS = e.TS
			}
			if wf, ok := e.Data["workflow"].(string); ok {
				sum.Workflow = wf
			}
		case EventRunFinished:
			sum.FinishedTS = e.TS
			if ok, isBool := e.Data["ok"].(bool); isBool && ok {
				sum.Status = "ok"
			} else {
				sum.Status = "failed"
			}
			if msg, ok := e.Data["error"].(string); ok {
				sum.Error = msg
			}
		case EventTxSubmitted:
			sig, _ := e.Data["signature"].(string)
			if sig == "" {
				continue
			}
			bySignature[sig] = len(sum.Transactions)
			sum.Transactions = append(sum.Transactions, TxRecord{
				Signature:   sig,
				Chain:       e.Chain,
				Tool:        e.Tool,
				SubmittedTS: e.TS,
			})
		case EventTxConfirmed:
			sig, _ := e.Data["signature"].(string)
			if sig == "" {
				continue
			}
			if idx, ok := bySignature[sig]; ok {
				sum.Transactions[idx].Confirmed = true
				sum.Transactions[idx].ConfirmedTS = e.TS
			}
		}
	}

	sum.Chains = sortedKeys(chains)
	return sum
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

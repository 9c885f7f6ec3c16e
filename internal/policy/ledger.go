package policy

import (
	"sync"
	"time"
)

// ledgerWindow bounds how much broadcast history the ledger retains per
// scope. Only the last minute matters to the rate gates; anything older is
// pruned on write.
const ledgerWindow = time.Minute

// Ledger records broadcast timestamps per scope (typically a wallet id or a
// chain/network pair) and answers the two questions the rate gates ask:
// seconds since the last broadcast, and broadcasts within the last minute.
//
// The policy engine itself is pure; the ledger is the caller-side state that
// feeds CallContext. It is safe for concurrent use by multiple runs.
type Ledger struct {
	mu     sync.Mutex
	last   map[string]time.Time
	recent map[string][]time.Time
	now    func() time.Time
}

// NewLedger creates an empty broadcast ledger.
func NewLedger() *Ledger {
	return &Ledger{
		last:   make(map[string]time.Time),
		recent: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// RecordBroadcast notes that a broadcast happened now for the given scope.
func (l *Ledger) RecordBroadcast(scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.last[scope] = now

	kept := l.recent[scope][:0]
	cutoff := now.Add(-ledgerWindow)
	for _, t := range l.recent[scope] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.recent[scope] = append(kept, now)
}

// SecondsSinceLast returns the seconds elapsed since the most recent
// broadcast for the scope, or false when none was recorded.
func (l *Ledger) SecondsSinceLast(scope string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.last[scope]
	if !ok {
		return 0, false
	}
	return l.now().Sub(last).Seconds(), true
}

// BroadcastsLastMinute counts broadcasts recorded for the scope within the
// trailing minute.
func (l *Ledger) BroadcastsLastMinute(scope string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-ledgerWindow)
	count := 0
	for _, t := range l.recent[scope] {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// Fill populates the rate-limit fields of a call context from the ledger.
func (l *Ledger) Fill(call *CallContext, scope string) {
	if since, ok := l.SecondsSinceLast(scope); ok {
		call.SecondsSinceLastBroadcast = &since
	}
	call.BroadcastsLastMinute = l.BroadcastsLastMinute(scope)
}

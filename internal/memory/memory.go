// internal/memory/memory.go
package memory

import (
	"sync"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// Log is the append-only attempt history for a single session. There is no
// mutation or deletion API: records accumulate until the session ends and are
// dropped with it. A Log instance is owned by exactly one session; the lock
// only guards against readers (status endpoints, persistence) racing the loop.
//
// The log also owns the per-element retry bookkeeping: execution failures are
// counted per element label, and an element whose failures reach the ceiling
// is reported as exhausted and excluded from future planning.
type Log struct {
	mu        sync.RWMutex
	sessionID string
	ceiling   int
	records   []schemas.AttemptRecord
	failures  map[string]int
	exhausted map[string]bool
}

// NewLog creates an empty attempt log for the session. ceiling bounds the
// per-element execution retries; values below 1 are clamped to 1.
func NewLog(sessionID string, ceiling int) *Log {
	if ceiling < 1 {
		ceiling = 1
	}
	return &Log{
		sessionID: sessionID,
		ceiling:   ceiling,
		failures:  make(map[string]int),
		exhausted: make(map[string]bool),
	}
}

// SessionID returns the owning session's identifier.
func (l *Log) SessionID() string { return l.sessionID }

// Record appends one attempt record. Execution failures against an element
// advance that element's retry counter; reaching the ceiling marks the
// element exhausted for the rest of the session.
func (l *Log) Record(rec schemas.AttemptRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.SessionID = l.sessionID
	l.records = append(l.records, rec)

	if rec.Phase == schemas.PhaseActing && rec.Outcome == schemas.OutcomeFailure && rec.ElementLabel != "" {
		l.failures[rec.ElementLabel]++
		if l.failures[rec.ElementLabel] >= l.ceiling {
			l.exhausted[rec.ElementLabel] = true
		}
	}
}

// History returns the ordered attempt records referencing the given element
// label. The returned slice is a copy.
func (l *Log) History(elementLabel string) []schemas.AttemptRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []schemas.AttemptRecord
	for _, rec := range l.records {
		if rec.ElementLabel == elementLabel {
			out = append(out, rec)
		}
	}
	return out
}

// IsExhausted reports whether the element has hit its retry ceiling.
func (l *Log) IsExhausted(elementLabel string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.exhausted[elementLabel]
}

// Exhausted returns a copy of the exhausted-element set, keyed by label.
func (l *Log) Exhausted() map[string]bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]bool, len(l.exhausted))
	for label := range l.exhausted {
		out[label] = true
	}
	return out
}

// FailureCount returns the number of execution failures recorded against the
// element so far.
func (l *Log) FailureCount(elementLabel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.failures[elementLabel]
}

// LastN returns the most recent n records, oldest first. n <= 0 returns nil.
func (l *Log) LastN(n int) []schemas.AttemptRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.records) == 0 {
		return nil
	}
	if n > len(l.records) {
		n = len(l.records)
	}
	out := make([]schemas.AttemptRecord, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// All returns a copy of the full history in append order.
func (l *Log) All() []schemas.AttemptRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]schemas.AttemptRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

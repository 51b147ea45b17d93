// api/schemas/attempts.go
package schemas

import "time"

// Outcome is the terminal status of one attempted action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Phase names the loop phase that produced an attempt record. Every loop
// transition appends exactly one record, so the log doubles as a trace of the
// state machine.
type Phase string

const (
	PhaseObserving  Phase = "observing"
	PhasePlanning   Phase = "planning"
	PhaseActing     Phase = "acting"
	PhaseReflecting Phase = "reflecting"
)

// AttemptRecord is the audit entry for one action outcome. Records are
// append-only: a session's history is never mutated or deleted while the
// session lives, and is dropped with it.
type AttemptRecord struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	Iteration    int        `json:"iteration"`
	Phase        Phase      `json:"phase"`
	ElementLabel string     `json:"element_label,omitempty"`
	Selector     string     `json:"selector,omitempty"`
	ActionKind   ActionKind `json:"action_kind,omitempty"`
	Outcome      Outcome    `json:"outcome"`
	Error        string     `json:"error,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	RetryCount   int        `json:"retry_count"`
	PageURL      string     `json:"page_url,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

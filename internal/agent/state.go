// internal/agent/state.go
package agent

import (
	"github.com/webpilot-ai/webpilot/api/schemas"
)

// LoopPhase is the agent's position in the decision state machine.
type LoopPhase string

const (
	StateObserving  LoopPhase = "OBSERVING"
	StatePlanning   LoopPhase = "PLANNING"
	StateActing     LoopPhase = "ACTING"
	StateReflecting LoopPhase = "REFLECTING"
	StateDone       LoopPhase = "DONE"
	StateFailed     LoopPhase = "FAILED"
)

// Terminal reports whether the phase ends the session.
func (p LoopPhase) Terminal() bool { return p == StateDone || p == StateFailed }

// recordPhase maps a loop phase onto the attempt-record phase vocabulary.
func recordPhase(p LoopPhase) schemas.Phase {
	switch p {
	case StatePlanning:
		return schemas.PhasePlanning
	case StateActing:
		return schemas.PhaseActing
	case StateReflecting:
		return schemas.PhaseReflecting
	default:
		return schemas.PhaseObserving
	}
}

// pendingAction is a planned action waiting for dispatch, with its target
// already resolved against the snapshot that produced it.
type pendingAction struct {
	Action   schemas.Action
	Selector string
	// PreHash is the content hash of the snapshot the action was planned
	// against, used by reflection's unchanged-page short-circuit.
	PreHash string
}

// State is the full condition of one decision loop between steps. Step takes
// a State and returns the successor; the struct is copied, never shared.
type State struct {
	SessionID string
	Task      string
	Phase     LoopPhase
	Iteration int

	// Snapshot is the page capture the current plan is grounded in. Only the
	// Observing phase replaces it.
	Snapshot *schemas.Snapshot

	// Pending is set by Planning and consumed by Acting.
	Pending *pendingAction

	// PlanningAttempts counts consecutive malformed planning responses for
	// the current observation; Feedback carries the corrective context shown
	// to the model on the retry.
	PlanningAttempts int
	Feedback         string

	// FinishClaimed is set when the planner chose FINISH; reflection must
	// confirm before the session transitions to Done.
	FinishClaimed bool

	// Result holds the final summary on Done; FailureReason the cause on
	// Failed.
	Result        string
	FailureReason string
}

// NewState builds the initial loop state for a session and task.
func NewState(sessionID, task string) State {
	return State{
		SessionID: sessionID,
		Task:      task,
		Phase:     StateObserving,
	}
}

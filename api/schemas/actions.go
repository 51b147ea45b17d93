// api/schemas/actions.go
package schemas

import (
	"fmt"
	"time"
)

// ActionKind is the closed vocabulary of moves the planner may choose from.
// The LLM must pick exactly one of these; anything else fails schema
// validation. There is no free-text fallback.
type ActionKind string

const (
	ActionClick      ActionKind = "CLICK"      // Click the target element. (Params: target)
	ActionType       ActionKind = "TYPE"       // Type text into the target element. (Params: target, value)
	ActionScroll     ActionKind = "SCROLL"     // Scroll the page. (Params: value="up"|"down", or target to scroll into view)
	ActionNavigate   ActionKind = "NAVIGATE"   // Navigate to a URL. (Params: value)
	ActionWait       ActionKind = "WAIT"       // Pause for dynamic content. (Params: duration_ms)
	ActionScreenshot ActionKind = "SCREENSHOT" // Capture the viewport. (Params: value used as file prefix)
	ActionFinish     ActionKind = "FINISH"     // Declare the task complete. (Params: value = summary)
)

// Action is a single, concrete step decided by the planner. It is produced by
// the LLM response validator and consumed exactly once by the executor.
//
// Target is an element label and must reference an Element present in the
// snapshot the action was planned against; a stale label fails validation
// rather than executing.
type Action struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Kind       ActionKind `json:"kind"`
	Target     string     `json:"target,omitempty"`
	Value      string     `json:"value,omitempty"`
	DurationMs int        `json:"duration_ms,omitempty"`

	// Thought carries the model's chain of reasoning; Rationale is the concise
	// justification. Both are kept for the attempt log and for debugging.
	Thought   string    `json:"thought,omitempty"`
	Rationale string    `json:"rationale,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// targetRequired lists the kinds that must name an element label.
var targetRequired = map[ActionKind]bool{
	ActionClick: true,
	ActionType:  true,
}

// valueRequired lists the kinds that must carry a payload.
var valueRequired = map[ActionKind]bool{
	ActionType:     true,
	ActionNavigate: true,
}

// knownKinds is the schema's closed set.
var knownKinds = map[ActionKind]bool{
	ActionClick:      true,
	ActionType:       true,
	ActionScroll:     true,
	ActionNavigate:   true,
	ActionWait:       true,
	ActionScreenshot: true,
	ActionFinish:     true,
}

// ValidateShape checks the action against the schema alone, independent of
// any snapshot: the kind must be known and the required parameters present.
func (a Action) ValidateShape() error {
	if !knownKinds[a.Kind] {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if targetRequired[a.Kind] && a.Target == "" {
		return fmt.Errorf("action %s requires a target element label", a.Kind)
	}
	if valueRequired[a.Kind] && a.Value == "" {
		return fmt.Errorf("action %s requires a value", a.Kind)
	}
	if a.Kind == ActionWait && a.DurationMs <= 0 {
		return fmt.Errorf("action %s requires a positive duration_ms", a.Kind)
	}
	return nil
}

// NeedsTarget reports whether this action resolves an element label before
// dispatch. SCROLL targets an element only when one is named.
func (a Action) NeedsTarget() bool {
	if targetRequired[a.Kind] {
		return true
	}
	return a.Kind == ActionScroll && a.Target != ""
}

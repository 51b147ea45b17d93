// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable failure class recorded in attempt history
// and fed back to the planner so it can choose a recovery strategy.
type ErrorCode string

const (
	CodeExtractionFailure ErrorCode = "EXTRACTION_FAILURE"
	CodePlanningFailure   ErrorCode = "PLANNING_FAILURE"
	CodeStaleLabel        ErrorCode = "STALE_LABEL"
	CodeExhaustedElement  ErrorCode = "EXHAUSTED_ELEMENT"
	CodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	CodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	CodeTimeout           ErrorCode = "TIMEOUT_ERROR"
	CodeNavigationError   ErrorCode = "NAVIGATION_ERROR"
	CodeReflectionFailure ErrorCode = "REFLECTION_FAILURE"
)

// ExtractionError wraps a snapshot capture failure. The loop retries the
// capture once after a short delay; a second failure fails the session.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return fmt.Sprintf("snapshot extraction: %v", e.Err) }
func (e *ExtractionError) Unwrap() error { return e.Err }

// PlanningError wraps an LLM response that failed schema validation or label
// resolution. Raw carries the offending response so it can be fed back as
// corrective context on the retry.
type PlanningError struct {
	Code ErrorCode
	Raw  string
	Err  error
}

func (e *PlanningError) Error() string { return fmt.Sprintf("planning (%s): %v", e.Code, e.Err) }
func (e *PlanningError) Unwrap() error { return e.Err }

// ExecutionError wraps a failed browser dispatch against one element.
type ExecutionError struct {
	Label    string
	Selector string
	Code     ErrorCode
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing against element %s (%s): %v", e.Label, e.Code, e.Err)
}
func (e *ExecutionError) Unwrap() error { return e.Err }

// classifyExecutionError maps a dispatch failure to its error code.
func classifyExecutionError(err error, navigation bool) ErrorCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case navigation:
		return CodeNavigationError
	default:
		return CodeExecutionFailure
	}
}

// internal/agent/prompts.go
package agent

import (
	"fmt"
	"strings"

	"github.com/webpilot-ai/webpilot/api/schemas"
)

// plannerSystemPrompt is the core instruction set for the planning call. The
// action vocabulary here must stay in lockstep with schemas.ActionKind.
const plannerSystemPrompt = `You are the decision core of 'webpilot', an autonomous web-browsing agent.
You are given a task, a snapshot of the current page, and the recent attempt history.
Page elements are listed with short labels in square brackets, like [A] or [AC].
Labels are only valid for the snapshot you are shown right now; never reuse a label from an earlier page.

Respond with a single JSON object and nothing else:
{"thought": "...", "rationale": "...", "action": "KIND", "target": "LABEL", "value": "...", "duration_ms": 0}

Available action kinds:
- CLICK: Click the target element. (Requires: target)
- TYPE: Replace the target field's content with value. (Requires: target, value)
- SCROLL: Scroll the page. (target scrolls that element into view; otherwise value="up" or "down")
- NAVIGATE: Go to a URL. (Requires: value)
- WAIT: Pause for dynamic content. (Requires: duration_ms > 0; optional target waits for that element)
- SCREENSHOT: Capture the viewport. (Optional: value used as file name prefix)
- FINISH: Declare the task complete. (value = a short summary of the outcome)

Error recovery:
- STALE_LABEL or INVALID_PARAMETERS: your previous response was rejected before execution. Fix the JSON using only labels from the current snapshot.
- EXECUTION_FAILURE: the element did not respond. After repeated failures it is removed from the list; pick another route.
- EXHAUSTED_ELEMENT: that element has failed too many times and may no longer be targeted; pick another route.
- TIMEOUT_ERROR: the page is slow. Consider WAIT before retrying.
- If an overlay or cookie banner is listed, deal with it before the main task.

Choose exactly one action per response. Respond with only the JSON object.`

// buildPlannerUserPrompt assembles the user-facing half of the planning call.
func buildPlannerUserPrompt(task, snapshotText, historyText, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nCurrent page:\n%s\n", task, snapshotText)
	if historyText != "" {
		fmt.Fprintf(&b, "\nRecent attempts:\n%s\n", historyText)
	}
	if feedback != "" {
		fmt.Fprintf(&b, "\nYour previous response was rejected:\n%s\n", feedback)
	}
	b.WriteString("\nDecide the next action. Respond with a single JSON object.")
	return b.String()
}

// reflectorSystemPrompt drives the task-completion verdict after an action.
const reflectorSystemPrompt = `You judge whether a web automation task is complete.
You are given the task, the action just performed, and the page state after it.
Respond with a single JSON object and nothing else:
{"status": "complete" | "continue" | "stuck", "reason": "..."}
- "complete": the page state shows the task goal has been reached.
- "continue": progress is possible but the goal is not reached yet.
- "stuck": the last action made no progress and the current approach should change.`

// buildReflectorUserPrompt assembles the verdict request.
func buildReflectorUserPrompt(task string, action schemas.Action, snapshotText string, finishClaimed bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\nLast action: %s", task, action.Kind)
	if action.Target != "" {
		fmt.Fprintf(&b, " on [%s]", action.Target)
	}
	if action.Value != "" {
		fmt.Fprintf(&b, " with value %q", action.Value)
	}
	if finishClaimed {
		b.WriteString("\nThe agent claims the task is finished; confirm against the page state.")
	}
	fmt.Fprintf(&b, "\n\nPage after the action:\n%s\n\nIs the task complete? Respond with a single JSON object.", snapshotText)
	return b.String()
}

// historyText renders recent attempt records into prompt lines, oldest first.
func historyText(records []schemas.AttemptRecord) string {
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&b, "- iter %d %s", rec.Iteration, rec.Phase)
		if rec.ActionKind != "" {
			fmt.Fprintf(&b, " %s", rec.ActionKind)
		}
		if rec.ElementLabel != "" {
			fmt.Fprintf(&b, " [%s]", rec.ElementLabel)
		}
		fmt.Fprintf(&b, ": %s", rec.Outcome)
		if rec.Error != "" {
			fmt.Fprintf(&b, " (%s: %s)", rec.ErrorCode, rec.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

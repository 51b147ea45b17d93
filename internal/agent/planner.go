// internal/agent/planner.go
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/snapshot"
)

// Allows for mocking in tests.
var uuidNewString = uuid.NewString

// planner turns a snapshot plus history into the next validated action.
type planner struct {
	cfg    config.AgentConfig
	logger *zap.Logger
	llm    schemas.LLMClient
}

func newPlanner(cfg config.AgentConfig, logger *zap.Logger, llm schemas.LLMClient) *planner {
	return &planner{cfg: cfg, logger: logger.Named("planner"), llm: llm}
}

// actionResponse is the wire shape the model answers the planning call with.
type actionResponse struct {
	Thought    string `json:"thought"`
	Rationale  string `json:"rationale"`
	ActionKind string `json:"action"`
	Target     string `json:"target"`
	Value      string `json:"value"`
	DurationMs int    `json:"duration_ms"`
}

// decide asks the model for the next action, shaped by the snapshot, the
// recent attempt history, and any corrective feedback from a rejected
// previous response. Failures return a *PlanningError carrying the raw
// response so the retry can show the model what it got wrong.
func (p *planner) decide(ctx context.Context, state State, exhausted map[string]bool, records []schemas.AttemptRecord) (schemas.Action, string, error) {
	snapshotText := snapshot.PromptText(state.Snapshot, exhausted, p.cfg.SnapshotByteBudget)
	userPrompt := buildPlannerUserPrompt(state.Task, snapshotText, historyText(records), state.Feedback)

	apiCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	response, err := p.llm.Generate(apiCtx, schemas.GenerationRequest{
		SystemPrompt: plannerSystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.2},
	})
	if err != nil {
		return schemas.Action{}, "", fmt.Errorf("llm generation failed: %w", err)
	}

	action, err := parseActionResponse(response)
	if err != nil {
		p.logger.Warn("Malformed planning response.", zap.String("raw_response", response), zap.Error(err))
		return schemas.Action{}, response, &PlanningError{Code: CodeInvalidParameters, Raw: response, Err: err}
	}

	action.ID = uuidNewString()
	action.SessionID = state.SessionID
	action.Timestamp = time.Now().UTC()
	return action, response, nil
}

// resolveTarget maps the action's element label to its selector in the
// snapshot. A label the snapshot does not contain is stale, and a label
// whose element has hit its retry ceiling is off limits; both fail before
// dispatch. Exhausted elements are already omitted from the prompt, but the
// model is free to ignore the prompt, so the exclusion is enforced here too.
func resolveTarget(action schemas.Action, snap *schemas.Snapshot, exhausted map[string]bool) (string, error) {
	if action.Target == "" {
		return "", nil
	}
	el, ok := snap.FindByLabel(action.Target)
	if !ok {
		return "", &PlanningError{
			Code: CodeStaleLabel,
			Err:  fmt.Errorf("label %q does not exist in the current snapshot", action.Target),
		}
	}
	if exhausted[action.Target] {
		return "", &PlanningError{
			Code: CodeExhaustedElement,
			Err:  fmt.Errorf("element %q has failed too many times and may not be targeted again", action.Target),
		}
	}
	return el.Selector, nil
}

// A regex to robustly extract a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// parseActionResponse extracts and validates the action JSON from a model
// response, tolerating markdown fences and surrounding prose.
func parseActionResponse(response string) (schemas.Action, error) {
	response = strings.TrimSpace(response)
	var jsonStringToParse string

	matches := jsonBlockRegex.FindStringSubmatch(response)
	if len(matches) > 1 {
		jsonStringToParse = strings.TrimSpace(matches[1])
	} else {
		firstBracket := strings.Index(response, "{")
		lastBracket := strings.LastIndex(response, "}")
		if firstBracket != -1 && lastBracket > firstBracket {
			jsonStringToParse = response[firstBracket : lastBracket+1]
		} else {
			jsonStringToParse = response
		}
	}

	if jsonStringToParse == "" {
		return schemas.Action{}, fmt.Errorf("could not find any JSON in the response")
	}

	var wire actionResponse
	if err := json.Unmarshal([]byte(jsonStringToParse), &wire); err != nil {
		return schemas.Action{}, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}

	action := schemas.Action{
		Kind:       schemas.ActionKind(strings.ToUpper(strings.TrimSpace(wire.ActionKind))),
		Target:     strings.TrimSpace(wire.Target),
		Value:      wire.Value,
		DurationMs: wire.DurationMs,
		Thought:    wire.Thought,
		Rationale:  wire.Rationale,
	}
	if wire.ActionKind == "" {
		return schemas.Action{}, fmt.Errorf("response missing required 'action' field")
	}
	if err := action.ValidateShape(); err != nil {
		return schemas.Action{}, err
	}
	return action, nil
}

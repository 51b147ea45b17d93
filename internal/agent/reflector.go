// internal/agent/reflector.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
	"github.com/webpilot-ai/webpilot/internal/snapshot"
)

// verdictComplete, verdictContinue, verdictStuck are the closed vocabulary of
// reflection statuses.
const (
	verdictComplete = "complete"
	verdictContinue = "continue"
	verdictStuck    = "stuck"
)

// verdict is the reflection call's wire shape.
type verdict struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// reflector judges task completion after an action, using the fast model
// tier: the verdict is a cheap classification, not a planning decision.
type reflector struct {
	cfg    config.AgentConfig
	logger *zap.Logger
	llm    schemas.LLMClient
}

func newReflector(cfg config.AgentConfig, logger *zap.Logger, llm schemas.LLMClient) *reflector {
	return &reflector{cfg: cfg, logger: logger.Named("reflector"), llm: llm}
}

// judge asks the model whether the task is complete given the post-action
// snapshot.
func (r *reflector) judge(ctx context.Context, state State, post *schemas.Snapshot) (verdict, error) {
	snapshotText := snapshot.PromptText(post, nil, r.cfg.SnapshotByteBudget)
	var action schemas.Action
	if state.Pending != nil {
		action = state.Pending.Action
	}
	userPrompt := buildReflectorUserPrompt(state.Task, action, snapshotText, state.FinishClaimed)

	apiCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	response, err := r.llm.Generate(apiCtx, schemas.GenerationRequest{
		SystemPrompt: reflectorSystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.0},
	})
	if err != nil {
		return verdict{}, fmt.Errorf("llm generation failed: %w", err)
	}

	v, err := parseVerdict(response)
	if err != nil {
		r.logger.Warn("Malformed reflection response.", zap.String("raw_response", response), zap.Error(err))
		return verdict{}, err
	}
	return v, nil
}

// parseVerdict extracts the verdict JSON, tolerating fences and prose the
// same way the planner does.
func parseVerdict(response string) (verdict, error) {
	response = strings.TrimSpace(response)
	jsonString := response

	if matches := jsonBlockRegex.FindStringSubmatch(response); len(matches) > 1 {
		jsonString = strings.TrimSpace(matches[1])
	} else if first, last := strings.Index(response, "{"), strings.LastIndex(response, "}"); first != -1 && last > first {
		jsonString = response[first : last+1]
	}

	var v verdict
	if err := json.Unmarshal([]byte(jsonString), &v); err != nil {
		return verdict{}, fmt.Errorf("failed to unmarshal verdict JSON: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(v.Status)) {
	case verdictComplete:
		v.Status = verdictComplete
	case verdictContinue:
		v.Status = verdictContinue
	case verdictStuck:
		v.Status = verdictStuck
	default:
		return verdict{}, fmt.Errorf("unknown verdict status %q", v.Status)
	}
	return v, nil
}

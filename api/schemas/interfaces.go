// api/schemas/interfaces.go
package schemas

import (
	"context"
	"encoding/json"
	"time"
)

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text
// generation process of the LLM, such as creativity (temperature) and output
// format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large
// Language Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// -- Browser Session Interface --

// ScreenshotResult describes a captured screenshot.
type ScreenshotResult struct {
	Path    string    `json:"path"`
	TakenAt time.Time `json:"taken_at"`
}

// SessionContext is the opaque, effectful boundary between the agent loop and
// one live browser tab. Implementations carry no retry logic of their own:
// all retry policy lives in the loop. Every method honors context
// cancellation; a cancelled call either completed (and reports so) or was
// never issued.
type SessionContext interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	ScrollTo(ctx context.Context, selector string) error
	ScrollBy(ctx context.Context, deltaY float64) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context, prefix string) (*ScreenshotResult, error)
	// ExecuteScript evaluates a JavaScript expression in the page and returns
	// the JSON-encoded result.
	ExecuteScript(ctx context.Context, script string) (json.RawMessage, error)
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

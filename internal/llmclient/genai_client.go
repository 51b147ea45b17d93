// internal/llmclient/genai_client.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

// GenAIClient implements schemas.LLMClient on top of the official
// google.golang.org/genai SDK. Functionally equivalent to the REST client;
// the SDK handles transport-level retries and auth.
type GenAIClient struct {
	client *genai.Client
	model  string
	cfg    config.LLMModelConfig
	logger *zap.Logger
}

// NewGenAIClient initializes the SDK-backed client.
func NewGenAIClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIClient{
		client: client,
		model:  cfg.Model,
		cfg:    cfg,
		logger: logger.Named("llm_client.genai"),
	}, nil
}

// Generate produces a completion for the request via the SDK.
func (c *GenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Options.Temperature)),
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}
	if c.cfg.TopP > 0 {
		genCfg.TopP = genai.Ptr(c.cfg.TopP)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.UserPrompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("genai generation failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("genai API returned an empty completion")
	}

	c.logger.Debug("LLM generation complete (genai SDK)", zap.String("model", c.model))
	return text, nil
}

// Close implements schemas.LLMClient.
func (c *GenAIClient) Close() error { return nil }

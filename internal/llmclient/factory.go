// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/webpilot-ai/webpilot/api/schemas"
	"github.com/webpilot-ai/webpilot/internal/config"
)

// NewClient builds the tiered router from the agent's LLM configuration. Each
// named model entry resolves to a provider-specific client; the fast and
// powerful defaults may point at the same entry, in which case the underlying
// client is shared.
func NewClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	built := make(map[string]schemas.LLMClient)

	buildModel := func(name string) (schemas.LLMClient, error) {
		if name == "" {
			return nil, fmt.Errorf("llm model name is empty")
		}
		if client, ok := built[name]; ok {
			return client, nil
		}
		modelCfg, ok := cfg.LLM.Models[name]
		if !ok {
			return nil, fmt.Errorf("no configuration found for llm model %q", name)
		}
		if modelCfg.Model == "" {
			modelCfg.Model = name
		}

		var (
			client schemas.LLMClient
			err    error
		)
		switch modelCfg.Provider {
		case config.ProviderGemini, "":
			client, err = NewGeminiClient(modelCfg, logger)
		case config.ProviderGeminiSDK:
			client, err = NewGenAIClient(ctx, modelCfg, logger)
		default:
			return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s, %s]",
				modelCfg.Provider, config.ProviderGemini, config.ProviderGeminiSDK)
		}
		if err != nil {
			return nil, err
		}
		built[name] = client
		return client, nil
	}

	fastClient, err := buildModel(cfg.LLM.DefaultFastModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build fast tier client: %w", err)
	}
	powerfulClient, err := buildModel(cfg.LLM.DefaultPowerfulModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build powerful tier client: %w", err)
	}

	return NewLLMRouter(logger, fastClient, powerfulClient)
}

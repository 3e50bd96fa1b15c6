package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/config"
)

// NewFromConfig builds the chat-completion client for the configured
// provider. Returns nil (and no error) when no provider is configured, so
// callers can wire the generative tier as optional.
func NewFromConfig(cfg *config.AIConfig, logger *zap.Logger) (LLMClient, error) {
	if !cfg.IsAvailable() {
		return nil, nil
	}

	switch cfg.Provider {
	case "openai":
		return NewClient(&Config{
			Endpoint:  cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
		}, logger)
	case "anthropic":
		return NewAnthropicClient(&Config{
			Endpoint:  cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// NewEmbeddingClientFromConfig builds the embedding client. Embeddings always
// go through an OpenAI-compatible endpoint; when the chat provider is
// anthropic, an explicit AI_EMBEDDING_BASE_URL (plus key) must point at one.
// Returns nil when no usable embedding endpoint is configured; the semantic
// classifier then stays cold and reports no matches rather than erroring.
func NewEmbeddingClientFromConfig(cfg *config.AIConfig, logger *zap.Logger) (LLMClient, error) {
	if !cfg.IsAvailable() {
		return nil, nil
	}

	if cfg.Provider == "anthropic" && cfg.EmbeddingBaseURL == "" {
		return nil, nil
	}

	return NewClient(&Config{
		Endpoint: cfg.EffectiveEmbeddingBaseURL(),
		Model:    cfg.EmbeddingModel,
		APIKey:   cfg.EffectiveEmbeddingAPIKey(),
	}, logger)
}

package llm

import (
	"testing"

	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/config"
)

func TestNewFromConfig_Unconfigured(t *testing.T) {
	client, err := NewFromConfig(&config.AIConfig{Provider: "none"}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client != nil {
		t.Error("expected nil client when provider is none")
	}
}

func TestNewFromConfig_OpenAI(t *testing.T) {
	client, err := NewFromConfig(&config.AIConfig{
		Provider: "openai",
		APIKey:   "sk-test",
		Model:    "gpt-4o-mini",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*Client); !ok {
		t.Errorf("expected *Client, got %T", client)
	}
	if client.GetModel() != "gpt-4o-mini" {
		t.Errorf("unexpected model %q", client.GetModel())
	}
}

func TestNewFromConfig_Anthropic(t *testing.T) {
	client, err := NewFromConfig(&config.AIConfig{
		Provider: "anthropic",
		APIKey:   "sk-ant-test",
		Model:    "claude-3-5-haiku-latest",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*AnthropicClient); !ok {
		t.Errorf("expected *AnthropicClient, got %T", client)
	}
}

func TestNewFromConfig_UnknownProvider(t *testing.T) {
	_, err := NewFromConfig(&config.AIConfig{
		Provider: "llamafile",
		APIKey:   "key",
		Model:    "m",
	}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewEmbeddingClientFromConfig_AnthropicWithoutEmbeddingURL(t *testing.T) {
	client, err := NewEmbeddingClientFromConfig(&config.AIConfig{
		Provider: "anthropic",
		APIKey:   "sk-ant-test",
		Model:    "claude-3-5-haiku-latest",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client != nil {
		t.Error("expected nil embedding client when anthropic has no embedding endpoint")
	}
}

func TestNewEmbeddingClientFromConfig_AnthropicWithEmbeddingURL(t *testing.T) {
	client, err := NewEmbeddingClientFromConfig(&config.AIConfig{
		Provider:         "anthropic",
		APIKey:           "sk-ant-test",
		Model:            "claude-3-5-haiku-latest",
		EmbeddingBaseURL: "http://localhost:8081/v1",
		EmbeddingAPIKey:  "local",
		EmbeddingModel:   "nomic-embed-text",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client == nil {
		t.Fatal("expected embedding client")
	}
	if client.GetModel() != "nomic-embed-text" {
		t.Errorf("unexpected embedding model %q", client.GetModel())
	}
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestNewClient_RequiresModel(t *testing.T) {
	_, err := NewClient(&Config{Endpoint: "http://localhost:1234/v1"}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	client, err := NewClient(&Config{
		Endpoint: "http://localhost:1234/v1/",
		Model:    "gpt-4o-mini",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.GetEndpoint() != "http://localhost:1234/v1" {
		t.Errorf("expected trimmed endpoint, got %q", client.GetEndpoint())
	}
}

func TestClient_GenerateResponse(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "{\"tool\": \"count_documents\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{
		Endpoint: server.URL + "/v1",
		Model:    "test-model",
		APIKey:   "test-key",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := client.GenerateResponse(context.Background(), "How many orders?", "You are a classifier.", 0.1)
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if resp != `{"tool": "count_documents"}` {
		t.Errorf("unexpected response content: %q", resp)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("expected chat completions path, got %q", gotPath)
	}
	if gotBody["model"] != "test-model" {
		t.Errorf("expected model test-model in request, got %v", gotBody["model"])
	}
}

func TestClient_GenerateResponse_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(&Config{
		Endpoint: server.URL + "/v1",
		Model:    "test-model",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.GenerateResponse(context.Background(), "question", "system", 0)
	if err == nil {
		t.Fatal("expected error from 503 response")
	}
	if !IsRetryable(err) {
		t.Errorf("expected 503 to be classified retryable, got: %v", err)
	}
}

func TestClient_CreateEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [{"embedding": [0.1, 0.2, 0.3], "index": 0}],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{
		Endpoint: server.URL + "/v1",
		Model:    "test-model",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vec, err := client.CreateEmbedding(context.Background(), "total revenue", "")
	if err != nil {
		t.Fatalf("CreateEmbedding failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3-dim vector, got %d", len(vec))
	}
}

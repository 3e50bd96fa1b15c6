package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/adapters/docstore"
	"github.com/shoplens-ai/shoplens-engine/pkg/llm"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

func newGenerativeClassifierForTest(client llm.LLMClient) Classifier {
	schema := NewSchemaService(docstore.NewMockStore(), zap.NewNop())
	return NewGenerativeClassifier(client, schema, 2*time.Second, 0, 10, zap.NewNop())
}

func askGenerative(t *testing.T, c Classifier, text string) models.ToolDecision {
	t.Helper()
	decision, err := c.Classify(context.Background(), models.Question{ShopID: 1, Text: text})
	require.NoError(t, err)
	return decision
}

func TestGenerativeClassifierParsesDecision(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		assert.Contains(t, prompt, "How many orders came in today?")
		assert.InDelta(t, 0.1, temperature, 0.001)
		return `{"tool": "count_documents", "confidence": 0.92, "collection": "orders"}`, nil
	}

	decision := askGenerative(t, newGenerativeClassifierForTest(mock), "How many orders came in today?")

	assert.Equal(t, models.ToolCountDocuments, decision.Tool)
	assert.Equal(t, models.MethodGenerative, decision.Method)
	assert.InDelta(t, 0.92, decision.Confidence, 0.001)
	assert.Equal(t, models.CollectionOrders, decision.Params.Collection)
}

func TestGenerativeClassifierStripsFencesAndCoercesValues(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		// Markdown fences, quoted numbers, and a trailing explanation all
		// appear in real model output.
		return "```json\n" +
			`{"tool": "get_top_n", "confidence": "0.8", "collection": "products", "sort_by": "price", "sort_desc": "true", "limit": "5"}` +
			"\n```\nHope that helps!", nil
	}

	decision := askGenerative(t, newGenerativeClassifierForTest(mock), "What are my five priciest products?")

	assert.Equal(t, models.ToolGetTopN, decision.Tool)
	assert.InDelta(t, 0.8, decision.Confidence, 0.001)
	assert.Equal(t, "price", decision.Params.SortBy)
	assert.True(t, decision.Params.SortDesc)
	assert.Equal(t, 5, decision.Params.Limit)
}

func TestGenerativeClassifierUnparseableFallsBackToKeywords(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no JSON at all", "I think you want a revenue report."},
		{"unknown tool", `{"tool": "drop_all_tables", "confidence": 0.9}`},
		{"missing confidence", `{"tool": "count_documents"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockLLMClient()
			mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
				return tt.response, nil
			}

			// Retries are allowed but must only cover transport errors, so a
			// response that parses badly is never re-requested.
			schema := NewSchemaService(docstore.NewMockStore(), zap.NewNop())
			c := NewGenerativeClassifier(mock, schema, 2*time.Second, 2, 10, zap.NewNop())

			decision := askGenerative(t, c, "What is my total revenue?")

			assert.Equal(t, models.MethodKeyword, decision.Method)
			assert.Equal(t, models.ToolCalculateSum, decision.Tool)
			assert.InDelta(t, keywordConfidence, decision.Confidence, 0.001)
			assert.Equal(t, 1, mock.GenerateResponseCalls)
		})
	}
}

func TestGenerativeClassifierTimeoutFallsBackWithoutHanging(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		<-ctx.Done() // simulate a model that never answers
		return "", llm.NewError(llm.ErrorTypeEndpoint, "request timeout", true, ctx.Err())
	}

	schema := NewSchemaService(docstore.NewMockStore(), zap.NewNop())
	c := NewGenerativeClassifier(mock, schema, 50*time.Millisecond, 0, 10, zap.NewNop())

	start := time.Now()
	decision := askGenerative(t, c, "How many orders do I have?")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "timeout must cut the call short")
	assert.Equal(t, models.MethodKeyword, decision.Method)
	assert.Equal(t, models.ToolCountDocuments, decision.Tool)
}

func TestGenerativeClassifierRetriesTransientErrorsOnly(t *testing.T) {
	calls := 0
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		calls++
		if calls == 1 {
			return "", llm.NewError(llm.ErrorTypeRateLimited, "rate limited", true, errors.New("429"))
		}
		return `{"tool": "calculate_sum", "confidence": 0.9, "collection": "orders", "field": "grand_total"}`, nil
	}

	schema := NewSchemaService(docstore.NewMockStore(), zap.NewNop())
	c := NewGenerativeClassifier(mock, schema, 5*time.Second, 2, 10, zap.NewNop())

	decision := askGenerative(t, c, "total revenue this month")

	assert.Equal(t, 2, calls, "transient error should be retried once")
	assert.Equal(t, models.ToolCalculateSum, decision.Tool)
	assert.Equal(t, models.MethodGenerative, decision.Method)
}

func TestGenerativeClassifierTripsBreakerAfterRepeatedOutages(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "", llm.NewError(llm.ErrorTypeEndpoint, "connection refused", false, errors.New("dial tcp"))
	}
	c := newGenerativeClassifierForTest(mock)

	// Five straight transport failures trip the circuit.
	for i := 0; i < 5; i++ {
		decision := askGenerative(t, c, "how many orders do I have")
		assert.Equal(t, models.MethodKeyword, decision.Method)
	}
	assert.Equal(t, 5, mock.GenerateResponseCalls)

	// The sixth question skips the provider entirely but still answers.
	decision := askGenerative(t, c, "how many orders do I have")
	assert.Equal(t, models.MethodKeyword, decision.Method)
	assert.Equal(t, models.ToolCountDocuments, decision.Tool)
	assert.Equal(t, 5, mock.GenerateResponseCalls, "open circuit must not reach the provider")
}

func TestGenerativeClassifierParseFailuresDoNotTripBreaker(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return "I could not decide on a tool for that.", nil
	}
	c := newGenerativeClassifierForTest(mock)

	// Garbage output means the provider is up, so every question still
	// reaches it.
	for i := 0; i < 6; i++ {
		askGenerative(t, c, "what is my total revenue")
	}
	assert.Equal(t, 6, mock.GenerateResponseCalls)
}

func TestGenerativeClassifierScreensExtraFilters(t *testing.T) {
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (string, error) {
		return `{
			"tool": "count_documents",
			"confidence": 0.9,
			"collection": "orders",
			"filters": {"status": "pending", "$where": "sleep(1000)", "note": "1' OR '1'='1"}
		}`, nil
	}

	decision := askGenerative(t, newGenerativeClassifierForTest(mock), "How many pending orders?")

	require.NotNil(t, decision.Params.Filters.Extra)
	assert.Equal(t, "pending", decision.Params.Filters.Extra["status"])
	// Operator keys and injection-fingerprinted values are dropped, not fatal.
	assert.NotContains(t, decision.Params.Filters.Extra, "$where")
	assert.NotContains(t, decision.Params.Filters.Extra, "note")
}

func TestGenerativeClassifierNilClientUsesHeuristic(t *testing.T) {
	c := newGenerativeClassifierForTest(nil)

	decision := askGenerative(t, c, "show me my recent orders")
	assert.Equal(t, models.MethodKeyword, decision.Method)
	assert.NotEqual(t, models.ToolNone, decision.Tool)

	off := askGenerative(t, c, "will it rain tomorrow")
	assert.Equal(t, models.ToolNone, off.Tool)
}

func TestKeywordHeuristicOrdering(t *testing.T) {
	c := newGenerativeClassifierForTest(nil)

	// "best selling" contains "sell" but must rank, not sum.
	best := askGenerative(t, c, "best selling products")
	assert.Equal(t, models.ToolBestSellingProducts, best.Tool)

	// "top customers" must not be claimed by the generic top-N hint.
	top := askGenerative(t, c, "top customers")
	assert.Equal(t, models.ToolTopCustomersBySpending, top.Tool)
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// stubClassifier is a scriptable tier for router tests.
type stubClassifier struct {
	name     string
	decision models.ToolDecision
	err      error
	delay    time.Duration
	calls    int
}

func (s *stubClassifier) Name() string { return s.name }

func (s *stubClassifier) Classify(ctx context.Context, question models.Question) (models.ToolDecision, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return models.ToolDecision{}, ctx.Err()
		}
	}
	if s.err != nil {
		return models.ToolDecision{}, s.err
	}
	return s.decision, nil
}

func testRouterPolicy() RouterPolicy {
	return RouterPolicy{EscalationThreshold: 0.3}
}

func TestRouterAcceptsFirstConfidentTier(t *testing.T) {
	first := &stubClassifier{
		name: "pattern",
		decision: models.ToolDecision{
			Tool:       models.ToolCountDocuments,
			Confidence: 0.9,
			Method:     models.MethodPattern,
		},
	}
	second := &stubClassifier{name: "generative"}

	r := NewRouter([]Classifier{first, second}, testRouterPolicy(), zap.NewNop())
	decision := r.Route(context.Background(), models.Question{ShopID: 1, Text: "how many orders"}, models.ExtractedFilters{})

	assert.Equal(t, models.ToolCountDocuments, decision.Tool)
	assert.Equal(t, models.MethodPattern, decision.Method)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "later tiers must not run once a decision is accepted")
}

func TestRouterEscalatesOnLowConfidenceOrNone(t *testing.T) {
	tests := []struct {
		name  string
		first models.ToolDecision
	}{
		{"unmatched pattern", models.ToolDecision{Tool: models.ToolNone, Confidence: 0.3, Method: models.MethodPattern}},
		{"confident none", models.ToolDecision{Tool: models.ToolNone, Confidence: 0.9, Method: models.MethodPattern}},
		{"low confidence tool", models.ToolDecision{Tool: models.ToolFindDocuments, Confidence: 0.1, Method: models.MethodPattern}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := &stubClassifier{name: "pattern", decision: tt.first}
			second := &stubClassifier{
				name: "generative",
				decision: models.ToolDecision{
					Tool:       models.ToolCalculateSum,
					Confidence: 0.85,
					Method:     models.MethodGenerative,
				},
			}

			r := NewRouter([]Classifier{first, second}, testRouterPolicy(), zap.NewNop())
			decision := r.Route(context.Background(), models.Question{ShopID: 1, Text: "revenue?"}, models.ExtractedFilters{})

			assert.Equal(t, models.ToolCalculateSum, decision.Tool)
			assert.Equal(t, models.MethodGenerative, decision.Method)
			assert.Equal(t, 1, second.calls)
		})
	}
}

func TestRouterAcceptsExactlyAtThreshold(t *testing.T) {
	first := &stubClassifier{
		name: "pattern",
		decision: models.ToolDecision{
			Tool:       models.ToolFindDocuments,
			Confidence: 0.3,
			Method:     models.MethodPattern,
		},
	}

	r := NewRouter([]Classifier{first}, testRouterPolicy(), zap.NewNop())
	decision := r.Route(context.Background(), models.Question{ShopID: 1, Text: "show orders"}, models.ExtractedFilters{})

	assert.Equal(t, models.ToolFindDocuments, decision.Tool)
}

func TestRouterSkipsFailingTier(t *testing.T) {
	failing := &stubClassifier{name: "generative", err: errors.New("model endpoint down")}
	next := &stubClassifier{
		name: "semantic",
		decision: models.ToolDecision{
			Tool:       models.ToolGetTopN,
			Confidence: 0.7,
			Method:     models.MethodSemantic,
		},
	}

	r := NewRouter([]Classifier{failing, next}, testRouterPolicy(), zap.NewNop())
	decision := r.Route(context.Background(), models.Question{ShopID: 1, Text: "top products"}, models.ExtractedFilters{})

	assert.Equal(t, models.ToolGetTopN, decision.Tool)
	assert.Equal(t, models.MethodSemantic, decision.Method)
}

func TestRouterSlowTierStillAnswersViaNextTier(t *testing.T) {
	// A tier that burns its internal budget and errors must hand over
	// immediately; the question still gets answered by the tier after it.
	slow := &stubClassifier{
		name:  "generative",
		delay: 20 * time.Millisecond,
		err:   errors.New("classification timed out"),
	}
	semantic := &stubClassifier{
		name: "semantic",
		decision: models.ToolDecision{
			Tool:       models.ToolBestSellingProducts,
			Confidence: 0.8,
			Method:     models.MethodSemantic,
		},
	}

	r := NewRouter([]Classifier{slow, semantic}, testRouterPolicy(), zap.NewNop())
	decision := r.Route(context.Background(), models.Question{ShopID: 1, Text: "best sellers"}, models.ExtractedFilters{})

	assert.Equal(t, models.ToolBestSellingProducts, decision.Tool)
	assert.Equal(t, 1, slow.calls)
	assert.Equal(t, 1, semantic.calls)
}

func TestRouterExhaustedDefaultsToNone(t *testing.T) {
	tiers := []Classifier{
		&stubClassifier{name: "pattern", decision: models.ToolDecision{Tool: models.ToolNone, Confidence: 0.3}},
		&stubClassifier{name: "generative", err: errors.New("down")},
		&stubClassifier{name: "semantic", decision: models.ToolDecision{Tool: models.ToolNone}},
	}

	r := NewRouter(tiers, testRouterPolicy(), zap.NewNop())
	decision := r.Route(context.Background(), models.Question{ShopID: 1, Text: "gibberish"}, models.ExtractedFilters{})

	assert.Equal(t, models.ToolNone, decision.Tool)
	assert.Equal(t, models.MethodDefault, decision.Method)
}

func TestRouterMergesExtractedFiltersIntoWinner(t *testing.T) {
	lt := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	extracted := models.ExtractedFilters{
		Date: &models.DateRange{
			GTE: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			LT:  &lt,
		},
		Status:  []models.StatusFilter{{Field: "status", Value: "delivered"}},
		Numeric: &models.NumericFilter{Field: "grand_total", GT: ptrFloat(100)},
	}

	winner := &stubClassifier{
		name: "generative",
		decision: models.ToolDecision{
			Tool:       models.ToolCountDocuments,
			Confidence: 0.9,
			Method:     models.MethodGenerative,
			Params: models.ToolParams{
				Collection: models.CollectionOrders,
				Filters: models.ExtractedFilters{
					Extra: map[string]string{"city": "nairobi"},
				},
			},
		},
	}

	r := NewRouter([]Classifier{winner}, testRouterPolicy(), zap.NewNop())
	decision := r.Route(context.Background(), models.Question{ShopID: 1, Text: "delivered orders over 100 last month from nairobi"}, extracted)

	assert.Equal(t, extracted.Date, decision.Params.Filters.Date)
	assert.Equal(t, extracted.Status, decision.Params.Filters.Status)
	assert.Equal(t, extracted.Numeric, decision.Params.Filters.Numeric)
	assert.Equal(t, map[string]string{"city": "nairobi"}, decision.Params.Filters.Extra,
		"screened generative literals survive the merge")
}

func TestRouterEmptyExtractionLeavesDecisionFiltersAlone(t *testing.T) {
	winner := &stubClassifier{
		name: "pattern",
		decision: models.ToolDecision{
			Tool:       models.ToolFindDocuments,
			Confidence: 0.7,
			Method:     models.MethodPattern,
			Params: models.ToolParams{
				Filters: models.ExtractedFilters{
					Extra: map[string]string{"status": "pending"},
				},
			},
		},
	}

	r := NewRouter([]Classifier{winner}, testRouterPolicy(), zap.NewNop())
	decision := r.Route(context.Background(), models.Question{ShopID: 1, Text: "pending orders"}, models.ExtractedFilters{})

	assert.Nil(t, decision.Params.Filters.Date)
	assert.Nil(t, decision.Params.Filters.Numeric)
	assert.Equal(t, map[string]string{"status": "pending"}, decision.Params.Filters.Extra)
}

func TestRouterWithRealPatternTier(t *testing.T) {
	pattern := NewPatternClassifier(10, zap.NewNop())
	fallback := &stubClassifier{name: "generative"}

	r := NewRouter([]Classifier{pattern, fallback}, testRouterPolicy(), zap.NewNop())
	decision := r.Route(context.Background(), models.Question{ShopID: 42, Text: "What is my total revenue?"}, models.ExtractedFilters{})

	assert.Equal(t, models.ToolCalculateSum, decision.Tool)
	assert.Equal(t, models.MethodPattern, decision.Method)
	assert.Equal(t, 0, fallback.calls)
}

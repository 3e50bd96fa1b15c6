package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDecisionJSON_Minimal(t *testing.T) {
	if err := ValidateDecisionJSON(`{"tool": "count_documents", "confidence": 0.8}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDecisionJSON_FullDecision(t *testing.T) {
	input := `{
		"tool": "calculate_sum",
		"confidence": 0.9,
		"collection": "orders",
		"field": "grand_total",
		"group_by": null,
		"limit": 5,
		"days": 30,
		"filters": {"status": "delivered"},
		"reasoning": "user asked for revenue"
	}`
	if err := ValidateDecisionJSON(input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDecisionJSON_QuotedNumbersAccepted(t *testing.T) {
	// Models routinely quote numeric fields; the schema tolerates it and
	// coercion happens later.
	input := `{"tool": "get_top_n", "confidence": "0.75", "limit": "3"}`
	if err := ValidateDecisionJSON(input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDecisionJSON_MissingTool(t *testing.T) {
	err := ValidateDecisionJSON(`{"confidence": 0.8}`)
	if err == nil {
		t.Fatal("expected error for missing tool")
	}
	if !strings.Contains(err.Error(), "tool") {
		t.Errorf("expected error to mention tool, got: %v", err)
	}
}

func TestValidateDecisionJSON_UnknownField(t *testing.T) {
	err := ValidateDecisionJSON(`{"tool": "count_documents", "confidence": 0.8, "pipeline": [{"$out": "x"}]}`)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateDecisionJSON_NotRetryable(t *testing.T) {
	err := ValidateDecisionJSON(`{"confidence": 0.8}`)
	var llmErr *Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if llmErr.Type != ErrorTypeParse {
		t.Errorf("expected parse error type, got %s", llmErr.Type)
	}
	if llmErr.IsRetryable() {
		t.Error("schema violations must not be retryable")
	}
}

package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildClassificationPrompt(t *testing.T) {
	schema := "Collection: orders\n  Fields: shop_id, status, grand_total, created_at"
	prompt := BuildClassificationPrompt("What was my revenue yesterday?", schema)

	// The live schema must be embedded so the model stays grounded.
	assert.Contains(t, prompt, "Collection: orders")
	assert.Contains(t, prompt, "grand_total")

	// Every catalogue tool must be offered.
	for _, tool := range []string{
		"count_documents",
		"find_documents",
		"group_and_count",
		"calculate_sum",
		"calculate_average",
		"get_top_n",
		"get_date_range",
		"get_best_selling_products",
		"get_top_customers_by_spending",
		"none",
	} {
		assert.Contains(t, prompt, "`"+tool+"`", "catalogue should offer %s", tool)
	}

	// The question itself and the JSON-only instruction close the prompt.
	assert.Contains(t, prompt, "What was my revenue yesterday?")
	assert.Contains(t, prompt, "Return ONLY the JSON")
}

func TestBuildClassificationPromptFewShots(t *testing.T) {
	prompt := BuildClassificationPrompt("anything", "schema")

	// Few-shot decisions are themselves valid-looking decision JSON.
	assert.Contains(t, prompt, `"tool": "count_documents"`)
	assert.Contains(t, prompt, `"tool": "none"`)

	// Examples precede the question section.
	examplesIdx := strings.Index(prompt, "## Examples")
	questionIdx := strings.Index(prompt, "## Question")
	assert.Greater(t, questionIdx, examplesIdx)
}

func TestBuildEnhancementPrompt(t *testing.T) {
	prompt := BuildEnhancementPrompt(
		"What was my revenue yesterday?",
		"Your total sales amount to $1,850.50 across 2 orders.",
	)

	assert.Contains(t, prompt, "What was my revenue yesterday?")
	assert.Contains(t, prompt, "$1,850.50")
	// The keep-numbers-verbatim contract is what the formatter's
	// post-validation leans on.
	assert.Contains(t, prompt, "exactly as given")
}

func TestSystemMessages(t *testing.T) {
	assert.Contains(t, BuildClassificationSystemMessage(), "JSON")
	assert.NotEmpty(t, BuildEnhancementSystemMessage())
}

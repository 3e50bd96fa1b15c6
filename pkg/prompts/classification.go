// Package prompts builds the LLM prompts used by the generative classifier
// and the answer enhancer. Prompt text lives here, away from service logic,
// so wording changes never touch control flow.
package prompts

import (
	"fmt"
	"strings"
)

// fewShotExample pairs a question with the decision JSON the model should
// produce for it. A small fixed set keeps the model anchored to the tool
// catalogue instead of inventing operations.
type fewShotExample struct {
	question string
	decision string
}

var classificationExamples = []fewShotExample{
	{
		question: "How many orders do I have?",
		decision: `{"tool": "count_documents", "confidence": 0.95, "collection": "orders"}`,
	},
	{
		question: "What was my total revenue yesterday?",
		decision: `{"tool": "calculate_sum", "confidence": 0.95, "collection": "orders", "field": "grand_total"}`,
	},
	{
		question: "Top 3 customers by spending",
		decision: `{"tool": "get_top_customers_by_spending", "confidence": 0.9, "collection": "orders", "limit": 3}`,
	},
	{
		question: "Break down my orders by status",
		decision: `{"tool": "group_and_count", "confidence": 0.9, "collection": "orders", "group_by": "status"}`,
	},
	{
		question: "What's the meaning of life?",
		decision: `{"tool": "none", "confidence": 0.9}`,
	},
}

// BuildClassificationPrompt creates the prompt asking the model to map a
// question onto one tool from the fixed catalogue. schema is the live
// formatted collection description from the schema service, so the prompt
// stays grounded in actual data shape.
func BuildClassificationPrompt(question, schema string) string {
	var prompt strings.Builder

	prompt.WriteString("# Analytics Question Classification\n\n")
	prompt.WriteString("Classify the merchant's question into exactly one tool from the catalogue below, ")
	prompt.WriteString("and extract its parameters.\n\n")

	prompt.WriteString("## Available Data\n\n")
	prompt.WriteString(schema)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Tool Catalogue\n\n")
	prompt.WriteString("- `count_documents`: count documents in a collection\n")
	prompt.WriteString("- `find_documents`: list documents (supports sort_by, sort_desc, limit)\n")
	prompt.WriteString("- `group_and_count`: count documents per value of group_by\n")
	prompt.WriteString("- `calculate_sum`: sum a numeric field (optionally grouped by group_by)\n")
	prompt.WriteString("- `calculate_average`: average a numeric field (optionally grouped by group_by)\n")
	prompt.WriteString("- `get_top_n`: documents sorted by sort_by, limited to limit\n")
	prompt.WriteString("- `get_date_range`: orders from the last `days` days\n")
	prompt.WriteString("- `get_best_selling_products`: products ranked by units sold\n")
	prompt.WriteString("- `get_top_customers_by_spending`: customers ranked by total spend\n")
	prompt.WriteString("- `none`: the question is not an analytics question over this data\n\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Pick exactly one tool. When in doubt between a tool and `none`, prefer `none`.\n")
	prompt.WriteString("- `collection` must be one of the collections listed above.\n")
	prompt.WriteString("- `confidence` is 0.0-1.0: how sure you are this tool answers the question.\n")
	prompt.WriteString("- `filters` may carry literal field=value equality constraints mentioned in the question.\n")
	prompt.WriteString("- Never invent fields that are not in the schema above.\n\n")

	prompt.WriteString("## Examples\n\n")
	for _, ex := range classificationExamples {
		prompt.WriteString(fmt.Sprintf("Question: %s\n", ex.question))
		prompt.WriteString(fmt.Sprintf("Decision: %s\n\n", ex.decision))
	}

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `tool`: one catalogue name\n")
	prompt.WriteString("- `confidence`: 0.0-1.0\n")
	prompt.WriteString("- `collection`, `group_by`, `field`, `sort_by`, `sort_desc`, `limit`, `days`: ")
	prompt.WriteString("only when the tool uses them\n")
	prompt.WriteString("- `filters`: object of literal field=value constraints (may be omitted)\n\n")

	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildClassificationSystemMessage returns the system message for the
// generative classifier.
func BuildClassificationSystemMessage() string {
	return `You are a query router for an e-commerce analytics engine. You map natural-language questions onto a fixed catalogue of aggregation tools. You only output JSON.`
}

// BuildEnhancementPrompt asks the model to rephrase a templated answer for
// fluency. The instruction to keep every number verbatim is the contract the
// formatter's post-validation enforces.
func BuildEnhancementPrompt(question, templatedAnswer string) string {
	var prompt strings.Builder

	prompt.WriteString("Rephrase the answer below so it reads naturally in response to the question. ")
	prompt.WriteString("Keep every number, name, and list entry exactly as given; change wording only. ")
	prompt.WriteString("Reply with the rephrased answer and nothing else.\n\n")

	prompt.WriteString(fmt.Sprintf("Question: %s\n", question))
	prompt.WriteString(fmt.Sprintf("Answer: %s\n", templatedAnswer))

	return prompt.String()
}

// BuildEnhancementSystemMessage returns the system message for answer
// enhancement.
func BuildEnhancementSystemMessage() string {
	return `You polish the wording of analytics answers for an e-commerce merchant. You never alter figures, counts, or item names.`
}

package models

// ToolName identifies one of the registered analytical operations. Every
// classifier decision resolves to a registered tool or to ToolNone; there is
// no null/undefined tool state reaching the executor.
type ToolName string

const (
	ToolCountDocuments         ToolName = "count_documents"
	ToolFindDocuments          ToolName = "find_documents"
	ToolGroupAndCount          ToolName = "group_and_count"
	ToolCalculateSum           ToolName = "calculate_sum"
	ToolCalculateAverage       ToolName = "calculate_average"
	ToolGetTopN                ToolName = "get_top_n"
	ToolGetDateRange           ToolName = "get_date_range"
	ToolBestSellingProducts    ToolName = "get_best_selling_products"
	ToolTopCustomersBySpending ToolName = "get_top_customers_by_spending"
	ToolNone                   ToolName = "none"
)

// ValidToolNames contains every registered tool, ToolNone included.
var ValidToolNames = []ToolName{
	ToolCountDocuments,
	ToolFindDocuments,
	ToolGroupAndCount,
	ToolCalculateSum,
	ToolCalculateAverage,
	ToolGetTopN,
	ToolGetDateRange,
	ToolBestSellingProducts,
	ToolTopCustomersBySpending,
	ToolNone,
}

// IsValidToolName checks if the given tool name is registered.
func IsValidToolName(t ToolName) bool {
	for _, v := range ValidToolNames {
		if v == t {
			return true
		}
	}
	return false
}

// ParseToolName maps a raw string (typically from LLM output) onto a
// registered tool, returning ToolNone for anything unrecognized.
func ParseToolName(s string) ToolName {
	t := ToolName(s)
	if IsValidToolName(t) {
		return t
	}
	return ToolNone
}

// Classification methods, recorded on every decision so callers can tell
// which tier produced an answer.
const (
	MethodPattern    = "pattern"
	MethodSemantic   = "semantic"
	MethodGenerative = "generative"
	MethodKeyword    = "keyword" // generative tier's parse-failure heuristic
	MethodDefault    = "default" // all tiers exhausted
	MethodCached     = "cached"
)

// ToolParams carries the parameters a classifier extracted for a tool.
// It is an explicit struct rather than a loose map so each tool's shape is
// validated at the decision boundary instead of deep inside execution.
type ToolParams struct {
	Collection string           `json:"collection,omitempty"`
	GroupBy    string           `json:"group_by,omitempty"`
	Field      string           `json:"field,omitempty"`
	SortBy     string           `json:"sort_by,omitempty"`
	SortDesc   bool             `json:"sort_desc,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Days       int              `json:"days,omitempty"`
	Filters    ExtractedFilters `json:"filters,omitempty"`
}

// ToolDecision is the output of the classifier chain: which tool to run,
// with what parameters, and how sure the classifier is. A decision is
// replaced wholesale by a higher tier on escalation, never mutated in place.
type ToolDecision struct {
	Tool       ToolName   `json:"tool"`
	Params     ToolParams `json:"params"`
	Confidence float64    `json:"confidence"`
	Method     string     `json:"method"`
	// Scores holds the semantic matcher's per-tool best similarity, kept for
	// debuggability since silent nearest-neighbor mistakes are the dominant
	// failure mode of that tier.
	Scores map[string]float64 `json:"scores,omitempty"`
}

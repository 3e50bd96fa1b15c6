package models

// Question is one natural-language analytics question scoped to a shop.
// Created per request, immutable, discarded after the response.
type Question struct {
	ShopID  int64             `json:"shop_id"`
	Text    string            `json:"question"`
	Context map[string]string `json:"context,omitempty"`
}

// QueryResponse is the envelope returned to API and MCP callers for one
// processed question.
type QueryResponse struct {
	Answer       string   `json:"answer"`
	Payload      any      `json:"payload,omitempty"`
	Tool         ToolName `json:"tool"`
	Confidence   float64  `json:"confidence"`
	Method       string   `json:"method"`
	ProcessingMS int64    `json:"processing_ms"`
	Cached       bool     `json:"cached"`
}

package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorResponse is the structured error payload carried inside a tool result.
// Returning it as result content keeps the code and message visible to the
// calling model; MCP protocol errors tend to reach it stripped of context.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult builds a tool result for errors the caller can act on:
// a missing or oversized question, an unsupported argument. System failures
// (store unreachable, internal faults) must stay Go errors so they surface
// as protocol errors instead.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails is NewErrorResult with a free-form details
// payload, for when the fix needs more than the message (for example the
// list of collections a question may target).
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	payload, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	})

	result := mcp.NewToolResultText(string(payload))
	result.IsError = true
	return result
}

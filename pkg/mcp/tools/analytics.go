// Package tools provides MCP tool implementations for shoplens-engine.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/apperrors"
	"github.com/shoplens-ai/shoplens-engine/pkg/auth"
	"github.com/shoplens-ai/shoplens-engine/pkg/models"
	"github.com/shoplens-ai/shoplens-engine/pkg/services"
)

// maxQuestionLength caps question size on the MCP surface, matching the HTTP API.
const maxQuestionLength = 500

// AnalyticsToolDeps contains dependencies for the analytics MCP tools.
type AnalyticsToolDeps struct {
	Orchestrator services.Orchestrator
	Schema       services.SchemaService
	Logger       *zap.Logger
}

// RegisterAnalyticsTools registers the shop analytics MCP tools.
func RegisterAnalyticsTools(s *server.MCPServer, deps *AnalyticsToolDeps) {
	registerAskAnalyticsTool(s, deps)
	registerGetSchemaTool(s, deps)
}

// registerAskAnalyticsTool adds the ask_analytics tool for natural-language shop questions.
func registerAskAnalyticsTool(s *server.MCPServer, deps *AnalyticsToolDeps) {
	tool := mcp.NewTool(
		"ask_analytics",
		mcp.WithDescription(
			"Answer a natural-language question about the authenticated shop's commerce data. "+
				"Supports counts, sums, averages, grouped breakdowns, top-N rankings, date-range lookups, "+
				"best-selling products, and top customers by spending over orders, products, and customers. "+
				"Results are always scoped to the shop in the access token. "+
				"Returns a natural-language answer plus the structured result payload, the tool that ran, "+
				"the classification method, and the confidence score. "+
				"Example: ask_analytics(question='what is my total revenue in the last 30 days') returns the "+
				"summed order revenue for that window.",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("Required - The question to answer, in plain language (max 500 characters)"),
		),
		mcp.WithBoolean(
			"use_cache",
			mcp.Description("Optional - Serve a recent identical answer from cache when available (default true)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		shopID, err := auth.RequireShopIDFromContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("shop scope missing from context: %w", err)
		}

		question := strings.TrimSpace(getOptionalString(req, "question"))
		if question == "" {
			return NewErrorResult("validation_error", "question is required"), nil
		}
		if len(question) > maxQuestionLength {
			return NewErrorResult("validation_error",
				fmt.Sprintf("question is too long (max %d characters)", maxQuestionLength)), nil
		}

		useCache := true
		if v, ok := getOptionalBool(req, "use_cache"); ok {
			useCache = v
		}

		response, err := deps.Orchestrator.ProcessQuery(ctx, models.Question{
			ShopID: shopID,
			Text:   question,
		}, useCache)
		if err != nil {
			// Connectivity failures surface as protocol errors; everything
			// else already degraded to a polite answer inside the orchestrator.
			if errors.Is(err, apperrors.ErrStoreUnavailable) {
				deps.Logger.Error("Analytics question failed: store unavailable",
					zap.Int64("shop_id", shopID),
					zap.Error(err))
				return nil, fmt.Errorf("document store unavailable: %w", err)
			}
			deps.Logger.Error("Analytics question failed",
				zap.Int64("shop_id", shopID),
				zap.Error(err))
			return nil, fmt.Errorf("failed to answer question: %w", err)
		}

		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerGetSchemaTool adds the get_schema tool describing the queryable collections.
func registerGetSchemaTool(s *server.MCPServer, deps *AnalyticsToolDeps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription(
			"Describe the collections and fields that ask_analytics can query: orders, products, and "+
				"customers, with per-field descriptions. "+
				"Use this to learn which fields exist before phrasing grouped or filtered questions. "+
				"Example: get_schema() shows that orders carry status, grand_total, and created_at.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		response := map[string]any{
			"schema": deps.Schema.GetFormattedSchema(ctx),
		}

		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalBool extracts an optional boolean parameter from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if val, ok := args[key].(bool); ok {
			return val, true
		}
	}
	return false, false
}

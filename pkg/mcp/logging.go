package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/auth"
)

// ToolCallLogger records MCP tool calls with timing and outcome via hooks.
type ToolCallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolCallLogger creates a hook-based logger for MCP tool calls.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{logger: logger.Named("mcp-tools")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (l *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(l.beforeCallTool)
	hooks.AddAfterCallTool(l.afterCallTool)
	hooks.AddOnError(l.onError)
	return hooks
}

func (l *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	l.startTimes.Store(id, time.Now())
}

func (l *ToolCallLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	start, _ := l.loadAndDeleteStart(id)

	fields := l.callFields(ctx, req)
	fields = append(fields, zap.Duration("duration", time.Since(start)))

	if result != nil && result.IsError {
		l.logger.Info("MCP tool call returned error result", fields...)
		return
	}
	l.logger.Debug("MCP tool call completed", fields...)
}

func (l *ToolCallLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}

	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	start, _ := l.loadAndDeleteStart(id)

	fields := l.callFields(ctx, req)
	fields = append(fields,
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
	l.logger.Warn("MCP tool call failed", fields...)
}

func (l *ToolCallLogger) loadAndDeleteStart(id any) (time.Time, bool) {
	if v, ok := l.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time), true
	}
	return time.Now(), false
}

func (l *ToolCallLogger) callFields(ctx context.Context, req *mcplib.CallToolRequest) []zap.Field {
	fields := []zap.Field{zap.String("tool", req.Params.Name)}
	if claims, ok := auth.GetClaims(ctx); ok && claims.ShopID > 0 {
		fields = append(fields, zap.Int64("shop_id", claims.ShopID))
	}
	return fields
}

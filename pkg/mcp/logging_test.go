package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shoplens-ai/shoplens-engine/pkg/auth"
)

func toolCallRequest(name string) *mcplib.CallToolRequest {
	req := &mcplib.CallToolRequest{}
	req.Params.Name = name
	return req
}

func shopContext(shopID int64) context.Context {
	return context.WithValue(context.Background(), auth.ClaimsKey, &auth.Claims{ShopID: shopID})
}

func TestToolCallLogger_LogsCompletedCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewToolCallLogger(zap.New(core))

	ctx := shopContext(13)
	req := toolCallRequest("ask_analytics")

	l.beforeCallTool(ctx, "req-1", req)
	l.afterCallTool(ctx, "req-1", req, mcplib.NewToolResultText("ok"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}

	entry := logs.All()[0]
	if entry.Message != "MCP tool call completed" {
		t.Errorf("unexpected message %q", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["tool"] != "ask_analytics" {
		t.Errorf("expected tool field, got %v", fields["tool"])
	}
	if fields["shop_id"] != int64(13) {
		t.Errorf("expected shop_id 13, got %v", fields["shop_id"])
	}
	if _, ok := fields["duration"]; !ok {
		t.Error("expected duration field")
	}
}

func TestToolCallLogger_ErrorResultLogsAtInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewToolCallLogger(zap.New(core))

	ctx := shopContext(13)
	req := toolCallRequest("ask_analytics")

	result := mcplib.NewToolResultText(`{"error":true}`)
	result.IsError = true

	l.beforeCallTool(ctx, "req-2", req)
	l.afterCallTool(ctx, "req-2", req, result)

	entry := logs.All()[0]
	if entry.Level != zapcore.InfoLevel {
		t.Errorf("expected info level, got %v", entry.Level)
	}
	if entry.Message != "MCP tool call returned error result" {
		t.Errorf("unexpected message %q", entry.Message)
	}
}

func TestToolCallLogger_OnErrorLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewToolCallLogger(zap.New(core))

	ctx := shopContext(13)
	req := toolCallRequest("get_schema")

	l.beforeCallTool(ctx, "req-3", req)
	l.onError(ctx, "req-3", mcplib.MethodToolsCall, req, errors.New("boom"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}

	entry := logs.All()[0]
	if entry.Level != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", entry.Level)
	}
	if entry.ContextMap()["tool"] != "get_schema" {
		t.Errorf("expected tool field, got %v", entry.ContextMap()["tool"])
	}
}

func TestToolCallLogger_IgnoresNonToolErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewToolCallLogger(zap.New(core))

	l.onError(context.Background(), "req-4", mcplib.MethodToolsList, nil, errors.New("boom"))

	if logs.Len() != 0 {
		t.Errorf("expected no log entries for non tool-call errors, got %d", logs.Len())
	}
}

func TestToolCallLogger_MissingStartTimeStillLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewToolCallLogger(zap.New(core))

	// afterCallTool without a matching beforeCallTool should not panic and
	// should report a near-zero duration.
	req := toolCallRequest("health")
	l.afterCallTool(context.Background(), "unknown", req, mcplib.NewToolResultText("ok"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	d, ok := logs.All()[0].ContextMap()["duration"].(time.Duration)
	if !ok {
		t.Fatal("expected duration field")
	}
	if d > time.Second {
		t.Errorf("expected near-zero duration, got %v", d)
	}
}

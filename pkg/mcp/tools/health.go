package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shoplens-ai/shoplens-engine/pkg/adapters/docstore"
)

// healthProbeTimeout bounds the dependency pings, matching the HTTP /ping handler.
const healthProbeTimeout = 2 * time.Second

// HealthToolDeps contains dependencies for the health MCP tool.
type HealthToolDeps struct {
	Version string
	Store   docstore.DocumentStore
	Cache   *redis.Client // nil when caching is disabled
	Logger  *zap.Logger
}

type healthResult struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Store   string `json:"store"`
	Cache   string `json:"cache"`
}

// RegisterHealthTool adds the health MCP tool. It reports the engine version
// plus document store and answer cache reachability, mirroring /ping: an
// unreachable store degrades the status, a disabled cache is normal.
func RegisterHealthTool(s *server.MCPServer, deps *HealthToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns engine health: version plus document store and answer cache reachability"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		defer cancel()

		health := healthResult{
			Status:  "ok",
			Service: "shoplens-engine",
			Version: deps.Version,
			Store:   "ok",
			Cache:   "disabled",
		}

		if err := deps.Store.Ping(probeCtx); err != nil {
			deps.Logger.Warn("Document store unreachable", zap.Error(err))
			health.Store = "unreachable"
			health.Status = "degraded"
		}

		if deps.Cache != nil {
			health.Cache = "ok"
			if err := deps.Cache.Ping(probeCtx).Err(); err != nil {
				deps.Logger.Warn("Answer cache unreachable", zap.Error(err))
				health.Cache = "unreachable"
			}
		}

		payload, err := json.Marshal(health)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}

// Package mcp assembles the engine's Model Context Protocol surface: a
// stateless streamable-HTTP endpoint exposing the analytics tools to MCP
// clients such as IDE agents and chat frontends.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// serverInstructions is sent to clients in the initialize handshake. Models
// read it when deciding which tool to call, so the contract is stated up
// front rather than left to per-tool descriptions alone.
const serverInstructions = `This server answers natural-language analytics questions about one e-commerce shop, scoped by the caller's token.
Ask one self-contained question per ask_analytics call; the server keeps no conversation state between calls.
Call get_schema to discover collections and fields before asking about data you have not seen.`

// Server owns the MCPServer instance and the transport it is served over.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer builds the MCP server with tool capabilities, panic recovery,
// and the engine's handshake instructions. Hooks are optional; pass nil to
// run without tool call instrumentation.
func NewServer(name, version string, hooks *server.Hooks, logger *zap.Logger) *Server {
	opts := []server.ServerOption{
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
		// Tool handlers run aggregations built from model output; a panic
		// there must surface as a JSON-RPC error, not kill the transport.
		server.WithRecovery(),
	}
	if hooks != nil {
		opts = append(opts, server.WithHooks(hooks))
	}

	return &Server{
		mcp:    server.NewMCPServer(name, version, opts...),
		logger: logger,
	}
}

// MCP exposes the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer wraps the server in the streamable HTTP transport.
// Stateless mode keeps the endpoint load-balancer friendly: every request
// carries its own auth and no session affinity is needed.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool adds a tool and its handler to the server.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

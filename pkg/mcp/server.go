package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/instabids/scope-engine/pkg/mcp/tools"
)

// Server wraps the mcp-go MCPServer with the scope capture tools.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance. When audit is non-nil every
// tool call is recorded through its hooks.
func NewServer(name, version string, logger *zap.Logger, audit *AuditLogger) *Server {
	opts := []server.ServerOption{
		server.WithToolCapabilities(true),
	}
	if audit != nil {
		opts = append(opts, server.WithHooks(audit.Hooks()))
	}

	return &Server{
		mcp:    server.NewMCPServer(name, version, opts...),
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterScopeTools registers every tool the driver uses to capture a project scope.
func (s *Server) RegisterScopeTools(deps *tools.ToolDeps, version string, checks ...tools.HealthCheck) {
	tools.RegisterHealthTool(s.mcp, version, checks...)
	tools.RegisterScopeTools(s.mcp, deps)
	tools.RegisterImageTools(s.mcp, deps)
	tools.RegisterConversationTools(s.mcp, deps)
	s.logger.Debug("Registered MCP tools")
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

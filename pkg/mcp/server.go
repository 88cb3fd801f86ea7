package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	mcpauth "github.com/ekaya-inc/ekaya-merge/pkg/mcp/auth"
	"github.com/ekaya-inc/ekaya-merge/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-merge/pkg/middleware"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "ekaya-merge"

// Server wraps the mcp-go MCPServer with the report tools registered.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server exposing health plus the report tools.
func NewServer(version string, deps *tools.ReportToolDeps, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	tools.RegisterHealthTool(mcpServer, version)
	tools.RegisterReportTools(mcpServer, deps)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
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

// RegisterRoutes mounts the streamable HTTP transport at /mcp behind bearer auth.
func (s *Server) RegisterRoutes(mux *http.ServeMux, authMiddleware *mcpauth.Middleware) {
	handler := middleware.MCPRequestLogger(s.logger)(authMiddleware.RequireAuth(s.NewStreamableHTTPServer()))
	mux.Handle("/mcp", handler)
}

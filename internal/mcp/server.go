package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/prismkeys/prism/internal/config"
	"github.com/prismkeys/prism/internal/model"
	"github.com/prismkeys/prism/internal/service"
)

// Store is the read side of the key store exposed to MCP clients.
type Store interface {
	ListRecentKeys(ctx context.Context, limit int) ([]model.Key, error)
	ListCooldowns(ctx context.Context) ([]model.Cooldown, error)
	ListRecentLogs(ctx context.Context, limit int) ([]model.LogEntry, error)
}

// Deps are the services the MCP tools read from.
type Deps struct {
	Store     Store
	Validator *service.Validator
	Stats     *service.StatsService
	Keys      config.KeysConfig
}

// MCPServer wraps the mcp-go server with Prism's read-only tools and
// resources, so agents can inspect issued keys and the audit trail without
// being able to mint or revoke anything.
type MCPServer struct {
	deps   Deps
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(deps Deps, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		deps:   deps,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"Prism Access Keys",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

package mcp

import (
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/opsdash/internal/agents"
	"github.com/ziadkadry99/opsdash/internal/apiclient"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes read-only run and agent tools.
type Server struct {
	client   *apiclient.Client
	chain    agents.ChainConfig
	location *time.Location
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server backed by client.
func NewServer(client *apiclient.Client, chain agents.ChainConfig, loc *time.Location) *Server {
	s := &Server{
		client:   client,
		chain:    chain,
		location: loc,
	}

	s.mcp = server.NewMCPServer(
		"opsdash",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(listRunsTool, s.handleListRuns)
	s.mcp.AddTool(getRunMetricsTool, s.handleGetRunMetrics)
	s.mcp.AddTool(getRunLogsTool, s.handleGetRunLogs)
	s.mcp.AddTool(listAgentVersionsTool, s.handleListAgentVersions)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all agentscan tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("agentscan", "0.1.0")
	client := NewScanClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolListAgents, h.HandleListAgents)
	s.AddTool(ToolGetAgent, h.HandleGetAgent)
	s.AddTool(ToolGetActivity, h.HandleGetActivity)
	s.AddTool(ToolGetStats, h.HandleGetStats)

	return s
}

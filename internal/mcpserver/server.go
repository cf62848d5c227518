package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// NewMCPServer creates a configured MCP server with all scoring tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("fraudscore", Version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolScoreTransaction, h.HandleScoreTransaction)
	s.AddTool(ToolGetModelInfo, h.HandleGetModelInfo)
	s.AddTool(ToolListCustomerPredictions, h.HandleListCustomerPredictions)

	return s
}

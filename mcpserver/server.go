// Package mcpserver exposes boards to MCP clients over stdio: listing,
// summaries, the rule based assistant, semantic search and task moves.
//
// Tools act as an operator and skip the per-user access checks of the HTTP
// API; the stdio transport is only reachable by whoever started the process.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/CrowderSoup/begtask/assistant"
	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
	"github.com/CrowderSoup/begtask/search"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps are the services the tools read from and write through.
type Deps struct {
	Data      *database.DataService
	Boards    *kanban.Registry
	Assistant *assistant.Assistant
	Index     *search.Service
}

// New creates the MCP server with every tool registered.
func New(d Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"begtask",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	for _, t := range tools(d) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// Serve blocks serving the MCP protocol on stdin and stdout.
func Serve(d Deps) error {
	return server.ServeStdio(New(d))
}

const instructions = "BegTask kanban boards. Use boards_list to find a board id, board_summary to read it, " +
	"board_ask for quick questions (overdue tasks, priorities, who does what), board_search to find tasks " +
	"by meaning, and task_move to move a task to another column or position."

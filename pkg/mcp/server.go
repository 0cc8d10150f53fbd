// Package mcp exposes model validation and replay as MCP tools for agents.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the droidreplay tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"droidreplay",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("droidreplay/validate",
			mcp.WithDescription("Validate a recorded or live GUI model YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the model YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("droidreplay/replay",
			mcp.WithDescription("Replay recorded traces against a simulated live app model and return the summary"),
			mcp.WithString("recorded", mcp.Required(), mcp.Description("Path to the recorded model")),
			mcp.WithString("live", mcp.Required(), mcp.Description("Path to the live app model")),
			mcp.WithString("package", mcp.Description("App package; optional when the recorded model holds one app")),
			mcp.WithString("config", mcp.Description("Path to droidreplay.yaml (optional)")),
			mcp.WithNumber("max_steps", mcp.Description("Step budget override (optional)")),
		),
		HandleReplay,
	)

	s.AddTool(
		mcp.NewTool("droidreplay/schema",
			mcp.WithDescription("Export the JSON Schema of model documents"),
		),
		HandleSchema,
	)

	return s
}

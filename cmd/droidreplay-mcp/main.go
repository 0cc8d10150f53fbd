// Package main provides the droidreplay-mcp binary, an MCP server over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	dmcp "github.com/leonbett/droidmate/pkg/mcp"
)

var version = "dev"

func main() {
	s := dmcp.NewServer(version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

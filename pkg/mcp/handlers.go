package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonbett/droidmate/pkg/config"
	"github.com/leonbett/droidmate/pkg/explore"
	"github.com/leonbett/droidmate/pkg/model"
	"github.com/leonbett/droidmate/pkg/report"
	"github.com/leonbett/droidmate/pkg/session"
)

// HandleValidate implements the droidreplay/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	doc, errs := model.ValidateFile(path)
	if model.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	states, actions := 0, 0
	for _, app := range doc.Apps {
		states += len(app.States)
		actions += len(app.Actions)
	}
	msg := fmt.Sprintf("✓ %s is valid (%d apps, %d states, %d recorded actions)", path, len(doc.Apps), states, actions)
	if w := formatWarnings(errs); w != "" {
		msg += "\nwarnings: " + w
	}
	return textResult(msg), nil
}

// HandleSchema implements the droidreplay/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := model.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleReplay implements the droidreplay/replay MCP tool.
func HandleReplay(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	recorded, _ := args["recorded"].(string)
	live, _ := args["live"].(string)
	if recorded == "" || live == "" {
		return errorResult("recorded and live arguments are required"), nil
	}
	pkg, _ := args["package"].(string)
	cfgPath, _ := args["config"].(string)

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadFile(cfgPath); err != nil {
			return errorResult(err.Error()), nil
		}
	}
	if n, ok := args["max_steps"].(float64); ok && n > 0 {
		cfg.Run.MaxSteps = int(n)
	}
	// Agents get the summary, not a trace file next to the model.
	cfg.Run.Trace = ""

	s, err := session.Open(session.Params{
		RecordedPath: recorded,
		LivePath:     live,
		Package:      pkg,
		Config:       cfg,
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	defer s.Close()

	res, runErr := s.Run(ctx)
	data, err := report.Build(s.Package, res).JSON()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: runErr != nil || res.Status == explore.StatusError,
	}, nil
}

func formatErrors(errs []*model.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func formatWarnings(errs []*model.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "warning" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Path, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}

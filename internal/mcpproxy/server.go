// Package mcpproxy exposes the tool catalog as an MCP server on stdio and
// forwards every call to the daemon's HTTP API.
package mcpproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mattjoyce/toolbridge/internal/catalog"
)

// Caller executes a tool and returns the text for the MCP client.
type Caller interface {
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Options configures the MCP server.
type Options struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

// NewServer registers every catalog tool on a new MCP server.
func NewServer(tools *catalog.Catalog, caller Caller, opts Options) *mcp.Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil)
	for _, tool := range tools.Tools() {
		server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema(),
		}, handler(tool, caller, logger))
	}
	return server
}

func handler(tool catalog.Tool, caller Caller, logger *slog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if err := tool.Validate(args); err != nil {
			return errorResult(err), nil
		}

		text, err := caller.CallTool(ctx, tool.Name, args)
		if err != nil {
			logger.Warn("tool call failed", "tool", tool.Name, "error", err)
			return errorResult(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: %v", err)}},
		IsError: true,
	}
}

// Run serves MCP on stdin/stdout until the client disconnects or ctx ends.
func Run(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

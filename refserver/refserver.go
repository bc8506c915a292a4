// Package refserver bundles a small, well-behaved stdio MCP server. It is
// the default reference side for comparisons: when a target under test
// diverges from it, the target is the interesting half.
package refserver

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "mcpconform-refserver"
	serverVersion = "1.0.0"
)

// EchoArgs is the input for the echo tool.
type EchoArgs struct {
	Message string `json:"message" jsonschema:"the text to echo back"`
}

// New builds the reference server with its static tool surface.
func New() *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{})

	mcp.AddTool(s, echoTool(), echoHandler())
	mcp.AddTool(s, sleepTool(), sleepHandler())

	return s
}

// Serve runs the reference server over stdio until the context ends or the
// peer closes input.
func Serve(ctx context.Context) error {
	return New().Run(ctx, &mcp.StdioTransport{})
}

func echoTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "echo",
		Description: "Returns the provided message unchanged.",
	}
}

func echoHandler() mcp.ToolHandlerFor[EchoArgs, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, args EchoArgs) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: args.Message},
			},
		}, nil, nil
	}
}

// SleepArgs is the input for the sleep tool.
type SleepArgs struct {
	Millis int `json:"millis" jsonschema:"how long to block before answering"`
}

// sleepTool exists so scripts can exercise timeout handling against a
// conformant server rather than a broken one.
func sleepTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "sleep",
		Description: "Blocks for the given number of milliseconds, then reports it.",
	}
}

func sleepHandler() mcp.ToolHandlerFor[SleepArgs, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args SleepArgs) (*mcp.CallToolResult, any, error) {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(time.Duration(args.Millis) * time.Millisecond):
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("slept %dms", args.Millis)},
			},
		}, nil, nil
	}
}

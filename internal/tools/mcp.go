package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotcommander/threadline/internal/proto"
)

// MCPCaller discovers and invokes tools on MCP servers.
type MCPCaller interface {
	Tools(ctx context.Context) (map[string][]mcp.Tool, error)
	CallTool(ctx context.Context, server, tool string, data []byte) (string, error)
}

// RegisterMCP registers every discovered MCP tool as <server>_<tool>.
// Calls are routed by the discovered server and tool names, never by
// splitting the registered name. It returns how many tools were added.
func RegisterMCP(ctx context.Context, reg *Registry, caller MCPCaller) (int, error) {
	byServer, err := caller.Tools(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, server := range slices.Sorted(maps.Keys(byServer)) {
		for _, tool := range byServer[server] {
			if err := reg.Register(mcpTool(caller, server, tool)); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func mcpTool(caller MCPCaller, server string, tool mcp.Tool) Tool {
	inputSchema := map[string]any{
		"type":       "object",
		"properties": tool.InputSchema.Properties,
	}
	if tool.InputSchema.Properties == nil {
		inputSchema["properties"] = map[string]any{}
	}
	if len(tool.InputSchema.Required) > 0 {
		inputSchema["required"] = tool.InputSchema.Required
	}

	name := fmt.Sprintf("%s_%s", server, tool.Name)
	return Func{
		Def: proto.ToolDefinition{
			Name:        name,
			Description: tool.Description,
			InputSchema: inputSchema,
		},
		Fn: func(ctx context.Context, args json.RawMessage) (string, error) {
			return caller.CallTool(ctx, server, tool.Name, args)
		},
	}
}

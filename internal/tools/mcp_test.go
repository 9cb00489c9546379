package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	tools map[string][]mcp.Tool
	calls []string
}

func (f *fakeCaller) Tools(context.Context) (map[string][]mcp.Tool, error) {
	return f.tools, nil
}

func (f *fakeCaller) CallTool(_ context.Context, server, tool string, data []byte) (string, error) {
	f.calls = append(f.calls, server+"/"+tool+" "+string(data))
	return "ok", nil
}

func TestRegisterMCP(t *testing.T) {
	caller := &fakeCaller{tools: map[string][]mcp.Tool{
		"fs": {{
			Name:        "read",
			Description: "read a file",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"path": map[string]any{"type": "string"}},
				Required:   []string{"path"},
			},
		}},
		"time": {{Name: "now"}},
	}}

	reg, err := NewRegistry()
	require.NoError(t, err)

	n, err := RegisterMCP(context.Background(), reg, caller)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	defs := reg.Definitions()
	require.Equal(t, "fs_read", defs[0].Name)
	require.Equal(t, "read a file", defs[0].Description)
	require.Equal(t, []string{"path"}, defs[0].InputSchema["required"])
	require.Equal(t, "time_now", defs[1].Name)
	require.Equal(t, map[string]any{}, defs[1].InputSchema["properties"])

	out, err := reg.Invoke(context.Background(), "fs_read", json.RawMessage(`{"path":"/tmp/x"}`))
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, []string{`fs/read {"path":"/tmp/x"}`}, caller.calls)
}

func TestRegisterMCPUnderscoredNames(t *testing.T) {
	caller := &fakeCaller{tools: map[string][]mcp.Tool{
		"brave_search": {{Name: "web"}, {Name: "local_pois"}},
	}}

	reg, err := NewRegistry()
	require.NoError(t, err)
	_, err = RegisterMCP(context.Background(), reg, caller)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "brave_search_web", json.RawMessage(`{"q":"go"}`))
	require.NoError(t, err)
	_, err = reg.Invoke(context.Background(), "brave_search_local_pois", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, []string{
		`brave_search/web {"q":"go"}`,
		`brave_search/local_pois {}`,
	}, caller.calls)
}

package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageClone(t *testing.T) {
	orig := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "call_1", Name: "search", Arguments: json.RawMessage(`{"query":"go"}`)},
		},
	}

	clone := orig.Clone()
	clone.ToolCalls[0].Name = "changed"
	clone.ToolCalls[0].Arguments[2] = 'X'

	require.Equal(t, "search", orig.ToolCalls[0].Name)
	require.JSONEq(t, `{"query":"go"}`, string(orig.ToolCalls[0].Arguments))
}

func TestConversationString(t *testing.T) {
	convo := Conversation{
		{Role: RoleSystem, Content: "ignored"},
		{Role: RoleUser, Content: "weather in Paris?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "search", Arguments: json.RawMessage(`{"query":"paris weather"}`)}}},
		{Role: RoleTool, ToolCallID: "c1", Name: "search", Content: "sunny\n"},
		{Role: RoleAssistant, Content: "It is sunny."},
	}

	expected := "**Prompt**:\n\nweather in Paris?\n\n" +
		"**Assistant**:\n\n> Ran tool: `search` {\"query\":\"paris weather\"}\n\n" +
		"**Tool result** (`search`):\n\n```\nsunny\n```\n\n" +
		"**Assistant**:\n\nIt is sunny.\n\n"
	require.Equal(t, expected, convo.String())
}

func TestConversationStringToolError(t *testing.T) {
	convo := Conversation{
		{Role: RoleTool, ToolCallID: "c1", Name: "search", Content: "boom", IsError: true},
	}
	require.Contains(t, convo.String(), "**Tool error** (`search`)")
}

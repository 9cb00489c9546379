// Package proto holds the message types shared by the agent loop, the
// conversation store and the model gateway.
package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the author of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one entry of a thread.
//
// ToolCalls is only set on assistant messages. ToolCallID, Name and IsError
// are only set on tool messages.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.ToolCalls == nil {
		return m
	}
	calls := make([]ToolCall, len(m.ToolCalls))
	for i, call := range m.ToolCalls {
		calls[i] = call
		if call.Arguments != nil {
			calls[i].Arguments = bytes.Clone(call.Arguments)
		}
	}
	m.ToolCalls = calls
	return m
}

// CloneMessages deep copies a message slice.
func CloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	for i, msg := range in {
		out[i] = msg.Clone()
	}
	return out
}

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request is one reasoning turn sent to the model gateway.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature *float64
	MaxTokens   *int64
	User        string
}

// Fragment is one unit streamed back by the model gateway.
// Exactly one of Text or ToolCall is set.
type Fragment struct {
	Text     string
	ToolCall *ToolCall
}

// Conversation is a thread's messages, rendered as markdown by String.
type Conversation []Message

func (cc Conversation) String() string {
	var sb strings.Builder
	for _, msg := range cc {
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleUser:
			sb.WriteString("**Prompt**:\n\n")
			sb.WriteString(msg.Content)
		case RoleAssistant:
			sb.WriteString("**Assistant**:\n\n")
			sb.WriteString(msg.Content)
			for i, call := range msg.ToolCalls {
				if msg.Content != "" || i > 0 {
					sb.WriteString("\n\n")
				}
				fmt.Fprintf(&sb, "> Ran tool: `%s` %s", call.Name, string(call.Arguments))
			}
		case RoleTool:
			label := "Tool result"
			if msg.IsError {
				label = "Tool error"
			}
			fmt.Fprintf(&sb, "**%s** (`%s`):\n\n", label, msg.Name)
			sb.WriteString("```\n")
			sb.WriteString(strings.TrimRight(msg.Content, "\n"))
			sb.WriteString("\n```")
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

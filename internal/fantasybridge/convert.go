// Package fantasybridge is the model gateway: it converts thread messages to
// Fantasy prompts and streams Fantasy responses back as fragments.
package fantasybridge

import (
	"errors"

	"charm.land/fantasy"

	"github.com/dotcommander/threadline/internal/proto"
)

func toFantasyPrompt(system string, input []proto.Message) fantasy.Prompt {
	messages := make([]fantasy.Message, 0, len(input)+1)
	if system != "" {
		messages = append(messages, textMessage(fantasy.MessageRoleSystem, system))
	}

	for _, msg := range input {
		switch msg.Role {
		case proto.RoleSystem:
			messages = append(messages, textMessage(fantasy.MessageRoleSystem, msg.Content))
		case proto.RoleUser:
			messages = append(messages, textMessage(fantasy.MessageRoleUser, msg.Content))
		case proto.RoleAssistant:
			parts := make([]fantasy.MessagePart, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, fantasy.TextPart{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				input := string(call.Arguments)
				if input == "" {
					input = "{}"
				}
				parts = append(parts, fantasy.ToolCallPart{
					ToolCallID: call.ID,
					ToolName:   call.Name,
					Input:      input,
				})
			}
			if len(parts) > 0 {
				messages = append(messages, fantasy.Message{
					Role:    fantasy.MessageRoleAssistant,
					Content: parts,
				})
			}
		case proto.RoleTool:
			var output fantasy.ToolResultOutputContent
			if msg.IsError {
				output = fantasy.ToolResultOutputContentError{Error: errors.New(msg.Content)}
			} else {
				output = fantasy.ToolResultOutputContentText{Text: msg.Content}
			}
			part := fantasy.ToolResultPart{ToolCallID: msg.ToolCallID, Output: output}

			// results answering the same assistant turn share one message
			if n := len(messages); n > 0 && messages[n-1].Role == fantasy.MessageRoleTool {
				messages[n-1].Content = append(messages[n-1].Content, part)
				continue
			}
			messages = append(messages, fantasy.Message{
				Role:    fantasy.MessageRoleTool,
				Content: []fantasy.MessagePart{part},
			})
		}
	}

	return messages
}

func textMessage(role fantasy.MessageRole, text string) fantasy.Message {
	return fantasy.Message{
		Role:    role,
		Content: []fantasy.MessagePart{fantasy.TextPart{Text: text}},
	}
}

func fromDefinitions(defs []proto.ToolDefinition) []fantasy.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]fantasy.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, fantasy.FunctionTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return tools
}

func toolChoiceForRequest(request proto.Request) *fantasy.ToolChoice {
	if len(request.Tools) == 0 {
		return nil
	}
	choice := fantasy.ToolChoiceAuto
	return &choice
}

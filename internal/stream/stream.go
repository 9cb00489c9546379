// Package stream encodes agent events as server-sent event records and
// decodes them back.
//
// Every record is a single "data: <json>" line followed by a blank line. The
// JSON payload carries a "type" discriminant: token, tool_start, tool_result,
// status or error.
package stream

import (
	"bytes"
	"encoding/json"

	"github.com/dotcommander/threadline/internal/agent"
)

// Record types.
const (
	TypeToken      = "token"
	TypeToolStart  = "tool_start"
	TypeToolResult = "tool_result"
	TypeStatus     = "status"
	TypeError      = "error"
)

// StatusDone is the status of a run that reached a final answer.
const StatusDone = "done"

// UnexpectedEnd is the error message written when the event source closes
// without a terminal event.
const UnexpectedEnd = "stream ended unexpectedly"

const dataPrefix = "data: "

// Record is a decoded wire record. Only the fields of its Type are set.
type Record struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Result  string          `json:"result,omitempty"`
	Status  string          `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Terminal reports whether r ends a stream.
func (r Record) Terminal() bool {
	return r.Type == TypeError || (r.Type == TypeStatus && r.Status == StatusDone)
}

// Event converts r back into the agent event it was encoded from. It
// reports false for records no event maps to: unknown types, and status
// records other than done. Those are not terminal either and can be skipped.
func (r Record) Event() (agent.Event, bool) {
	switch r.Type {
	case TypeToken:
		return agent.Event{Kind: agent.EventToken, Text: r.Content}, true
	case TypeToolStart:
		return agent.Event{Kind: agent.EventToolStart, Tool: r.Tool, Input: r.Input}, true
	case TypeToolResult:
		return agent.Event{Kind: agent.EventToolResult, Tool: r.Tool, Output: r.Result}, true
	case TypeStatus:
		if r.Status != StatusDone {
			return agent.Event{}, false
		}
		return agent.Event{Kind: agent.EventDone}, true
	case TypeError:
		return agent.Event{Kind: agent.EventError, Text: r.Message}, true
	default:
		return agent.Event{}, false
	}
}

type tokenPayload struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type toolStartPayload struct {
	Type  string          `json:"type"`
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

type toolResultPayload struct {
	Type   string `json:"type"`
	Tool   string `json:"tool"`
	Result string `json:"result"`
}

type statusPayload struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func payloadOf(ev agent.Event) any {
	switch ev.Kind {
	case agent.EventToken:
		return tokenPayload{Type: TypeToken, Content: ev.Text}
	case agent.EventToolStart:
		return toolStartPayload{Type: TypeToolStart, Tool: ev.Tool, Input: inputObject(ev.Input)}
	case agent.EventToolResult:
		return toolResultPayload{Type: TypeToolResult, Tool: ev.Tool, Result: ev.Output}
	case agent.EventDone:
		return statusPayload{Type: TypeStatus, Status: StatusDone}
	default:
		msg := ev.Text
		if msg == "" && ev.Err != nil {
			msg = ev.Err.Error()
		}
		return errorPayload{Type: TypeError, Message: msg}
	}
}

// inputObject returns raw when it is a JSON object, {} otherwise.
func inputObject(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return json.RawMessage("{}")
	}
	return trimmed
}

package agent

import "encoding/json"

// EventKind identifies a loop event.
type EventKind string

// Loop event kinds.
const (
	EventToken      EventKind = "token"
	EventToolStart  EventKind = "tool_start"
	EventToolResult EventKind = "tool_result"
	EventDone       EventKind = "done"
	EventError      EventKind = "error"
)

// Event is a transient notification of loop progress. It is never persisted.
type Event struct {
	Kind EventKind

	// Text is the token content, or the user-facing message of an error.
	Text string

	Tool   string
	Input  json.RawMessage
	Output string

	Err error
}

// Terminal reports whether e ends a run.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

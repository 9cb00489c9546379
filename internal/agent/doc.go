// Package agent runs the conversational loop: it alternates between model
// reasoning turns and sequential tool execution against one thread's
// history, and reports progress as a channel of events.
package agent

package present

import (
	"bytes"
	"encoding/json"
	"strings"
)

const maxResultPreview = 120

// ToolStart renders the line shown when the agent starts a tool.
func ToolStart(s Styles, name string, input json.RawMessage) string {
	line := s.Tool.Render("⚙ " + name)
	if args := compactJSON(input); args != "" && args != "{}" {
		line += " " + s.Comment.Render(args)
	}
	return line
}

// ToolResult renders a one-line preview of a tool's output.
func ToolResult(s Styles, name, output string) string {
	return s.Tool.Render("↳ "+name) + " " + s.Comment.Render(Preview(output, maxResultPreview))
}

// Preview collapses whitespace in s and truncates it to n runes.
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

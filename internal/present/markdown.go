package present

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders md with glamour at the given wrap width. Tabs are
// expanded so the output lines up in any terminal.
func RenderMarkdown(md string, wordWrap int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("new markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.ReplaceAll(strings.TrimRightFunc(out, unicode.IsSpace), "\t", "    ") + "\n", nil
}

// Markdown renders md when stdout is a terminal and returns it unchanged
// otherwise, or when rendering fails.
func Markdown(md string, wordWrap int) string {
	if !IsOutputTTY() {
		return md
	}
	out, err := RenderMarkdown(md, wordWrap)
	if err != nil {
		return md
	}
	return out
}

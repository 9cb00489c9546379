package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/editor"

	"github.com/dotcommander/threadline/internal/present"
)

const maxStdinBytes = 1 << 20

// readMessage joins the argument text with piped stdin, if any.
func readMessage(args []string, stdin io.Reader, piped bool) (string, error) {
	msg := strings.TrimSpace(strings.Join(args, " "))
	if !piped {
		return msg, nil
	}
	bts, err := io.ReadAll(io.LimitReader(stdin, maxStdinBytes))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if in := strings.TrimSpace(string(bts)); in != "" {
		if msg == "" {
			return in, nil
		}
		return msg + "\n\n" + in, nil
	}
	return msg, nil
}

func drainStdin() {
	if present.IsInputTTY() {
		return
	}
	_, _ = io.Copy(io.Discard, os.Stdin)
}

func messageFromEditor(appName string) (string, error) {
	f, err := os.CreateTemp("", "message*.md")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file: %w", err)
	}
	_ = f.Close()
	defer func() { _ = os.Remove(f.Name()) }()

	c, err := editor.Cmd(appName, f.Name())
	if err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stderr = os.Stderr
	c.Stdout = os.Stdout
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	bts, err := os.ReadFile(f.Name())
	if err != nil {
		return "", fmt.Errorf("could not read file: %w", err)
	}
	return strings.TrimSpace(string(bts)), nil
}

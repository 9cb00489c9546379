package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/ordered"
	"github.com/spf13/cobra"

	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/present"
	"github.com/dotcommander/threadline/internal/proto"
	"github.com/dotcommander/threadline/internal/storage"
	"github.com/dotcommander/threadline/internal/tui"
)

func newChatCmd(rt *runtime) *cobra.Command {
	var thread, remote string
	cmd := &cobra.Command{
		Use:   "chat [initial message]",
		Short: "Start an interactive multi-turn chat session",
		Long:  "Start an interactive REPL on a thread. Type /new for a fresh thread, /exit or Ctrl+C to quit.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !present.IsInputTTY() {
				return errs.Error{Reason: "chat needs an interactive terminal; use threadline ask instead."}
			}
			return rt.runChat(cmd.Context(), cmd.ErrOrStderr(), thread, remote, strings.TrimSpace(strings.Join(args, " ")))
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&thread, "thread", "t", "", present.StdoutStyles().FlagDesc.Render(helpText["thread"]))
	flags.StringVar(&remote, "remote", "", present.StdoutStyles().FlagDesc.Render(helpText["remote"]))
	flags.IntVar(&rt.flags.wordWrap, "word-wrap", 0, present.StdoutStyles().FlagDesc.Render(helpText["word-wrap"]))
	return cmd
}

func (rt *runtime) runChat(ctx context.Context, errOut io.Writer, threadID, remote, initial string) error {
	threadID = ordered.First(threadID, storage.NewThreadID())

	src, err := rt.source(ctx, remote)
	if err != nil {
		return err
	}
	defer src.Close()

	var history []proto.Message
	if src.app != nil {
		if history, err = src.app.store.Load(ctx, threadID); err != nil {
			return errs.Wrap(err, "Could not load the thread.")
		}
	}

	chat := tui.NewChat(ctx, present.StderrRenderer(), src.run, threadID, history, rt.cfg.WordWrap, initial)
	p := tea.NewProgram(chat, tea.WithAltScreen(), tea.WithOutput(errOut), tea.WithContext(ctx))
	m, err := p.Run()
	if err != nil {
		return errs.Wrap(err, "Couldn't start chat program.")
	}

	c := m.(*tui.Chat)
	if c.Error != nil {
		return *c.Error
	}
	if hint := rt.continueHint("chat", c.ThreadID(), remote); hint != "" {
		fmt.Fprintf(errOut, "%s %s\n",
			present.StderrStyles().Comment.Render("Continue with:"),
			present.StderrStyles().InlineCode.Render(hint),
		)
	}
	return nil
}

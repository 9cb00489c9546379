package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/x/exp/ordered"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/threadline/internal/agent"
	"github.com/dotcommander/threadline/internal/client"
	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/fantasybridge"
	"github.com/dotcommander/threadline/internal/present"
	"github.com/dotcommander/threadline/internal/storage"
	"github.com/dotcommander/threadline/internal/tui"
)

type askOptions struct {
	thread string
	remote string
	render bool
	copy   bool
	editor bool
	quiet  bool
}

func newAskCmd(rt *runtime) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Ask one question and stream the answer",
		Long:  "Run the agent once on a thread. Tokens go to stdout, tool activity to stderr. Piped stdin is appended to the message.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runAsk(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, opts)
		},
	}

	flags := cmd.Flags()
	desc := func(name string) string { return present.StdoutStyles().FlagDesc.Render(helpText[name]) }
	flags.StringVarP(&opts.thread, "thread", "t", "", desc("thread"))
	flags.StringVar(&opts.remote, "remote", "", desc("remote"))
	flags.BoolVar(&opts.render, "render", false, desc("render"))
	flags.BoolVar(&opts.copy, "copy", false, desc("copy"))
	flags.BoolVarP(&opts.editor, "editor", "e", false, desc("editor"))
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, desc("quiet"))
	flags.IntVar(&rt.flags.wordWrap, "word-wrap", 0, desc("word-wrap"))
	return cmd
}

func (rt *runtime) runAsk(ctx context.Context, out, errOut io.Writer, args []string, opts askOptions) error {
	msg, err := readMessage(args, os.Stdin, !present.IsInputTTY())
	if err != nil {
		return err
	}
	if msg == "" && opts.editor && present.IsInputTTY() {
		if msg, err = messageFromEditor("threadline"); err != nil {
			return err
		}
	}
	if msg == "" {
		return errs.Error{
			Reason: "You haven't provided any message.",
			Err: errs.UserErrorf(
				"You can give your message as arguments and/or pipe it from STDIN.\nExample: %s",
				present.StdoutStyles().InlineCode.Render("threadline ask [message]"),
			),
		}
	}

	threadID := ordered.First(opts.thread, storage.NewThreadID())

	src, err := rt.source(ctx, opts.remote)
	if err != nil {
		return err
	}
	defer src.Close()

	events, err := src.run(ctx, threadID, msg)
	if err != nil {
		return err
	}

	answerOut := out
	if opts.render {
		answerOut = io.Discard
	}
	activity := errOut
	if opts.quiet {
		activity = io.Discard
	}
	answer, err := printRun(events, answerOut, activity, present.StderrStyles())
	if err != nil {
		return err
	}

	tail := answer
	if opts.render {
		tail = present.Markdown(answer, rt.cfg.WordWrap)
		fmt.Fprint(out, tail)
	}
	if !strings.HasSuffix(tail, "\n") {
		fmt.Fprintln(out)
	}

	if opts.copy {
		if err := clipboard.WriteAll(answer); err != nil {
			termenv.Copy(answer)
		}
	}
	if !opts.quiet && opts.thread == "" {
		if hint := rt.continueHint("ask", threadID, opts.remote); hint != "" {
			fmt.Fprintf(errOut, "\n%s %s\n",
				present.StderrStyles().Comment.Render("Continue with:"),
				present.StderrStyles().InlineCode.Render(hint),
			)
		}
	}
	return nil
}

// continueHint is the command line that resumes threadID, or "" when the
// thread lives only in this process's memory store.
func (rt *runtime) continueHint(command, threadID, remote string) string {
	args := []string{"threadline", command}
	switch {
	case remote != "":
		args = append(args, "--remote", remote)
	case rt.cfg.Store.Driver == config.StoreMemory:
		return ""
	case rt.flags.store != "":
		args = append(args, "--store", rt.cfg.Store.Driver, "--store-path", rt.cfg.Store.Path)
	}
	return strings.Join(append(args, "-t", threadID), " ")
}

// source is where runs execute: an in-process agent or a remote server.
type source struct {
	run tui.Runner
	app *app
}

func (rt *runtime) source(ctx context.Context, remote string) (source, error) {
	if remote != "" {
		httpClient, err := fantasybridge.ProxyClient(rt.cfg.HTTPProxy)
		if err != nil {
			return source{}, err
		}
		return source{run: client.New(remote, httpClient).Run}, nil
	}
	a, err := newApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return source{}, err
	}
	return source{run: a.service.Run, app: a}, nil
}

func (s source) Close() {
	if s.app != nil {
		_ = s.app.Close()
	}
}

// printRun writes tokens to out and tool activity to activity until the
// terminal event. It returns the text of the last turn, which is the answer
// once tools have run.
func printRun(events <-chan agent.Event, out, activity io.Writer, styles present.Styles) (string, error) {
	var (
		answer  strings.Builder
		midLine bool
	)
	for ev := range events {
		switch ev.Kind {
		case agent.EventToken:
			answer.WriteString(ev.Text)
			fmt.Fprint(out, ev.Text)
			midLine = !strings.HasSuffix(ev.Text, "\n")
		case agent.EventToolStart:
			answer.Reset()
			if midLine {
				fmt.Fprintln(out)
				midLine = false
			}
			fmt.Fprintln(activity, present.ToolStart(styles, ev.Tool, ev.Input))
		case agent.EventToolResult:
			fmt.Fprintln(activity, present.ToolResult(styles, ev.Tool, ev.Output))
		case agent.EventError:
			if midLine {
				fmt.Fprintln(out)
			}
			return answer.String(), errs.Error{Reason: ev.Text}
		case agent.EventDone:
			return answer.String(), nil
		}
	}
	return answer.String(), errs.Error{Reason: "The run ended without a result."}
}

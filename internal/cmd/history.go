package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	timeago "github.com/caarlos0/timea.go"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/present"
	"github.com/dotcommander/threadline/internal/proto"
	"github.com/dotcommander/threadline/internal/storage"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse saved threads",
	}

	historyCmd.AddCommand(newHistoryListCmd(rt))
	historyCmd.AddCommand(newHistoryShowCmd(rt))

	return historyCmd
}

func newHistoryListCmd(rt *runtime) *cobra.Command {
	var (
		since time.Duration
		raw   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved threads, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withLister(func(store lister) error {
				threads, err := recentThreads(cmd.Context(), store, since, time.Now())
				if err != nil {
					return err
				}
				if len(threads) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "No threads found.")
					return nil
				}
				if present.IsInputTTY() && present.IsOutputTTY() && !raw {
					id, err := selectThread(threads)
					if err != nil || id == "" {
						return err
					}
					return rt.printThread(cmd.Context(), cmd.OutOrStdout(), store, id)
				}
				printThreads(cmd.OutOrStdout(), present.StdoutStyles(), threads)
				return nil
			})
		},
	}
	cmd.Flags().Var(newDurationFlag(0, &since), "since", present.StdoutStyles().FlagDesc.Render(helpText["since"]))
	cmd.Flags().BoolVarP(&raw, "raw", "r", false, present.StdoutStyles().FlagDesc.Render(helpText["raw"]))
	return cmd
}

func newHistoryShowCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [thread]",
		Short: "Show a saved thread",
		Long:  "Show a thread by id, id prefix or title. Without an argument an interactive picker is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withLister(func(store lister) error {
				var id string
				if len(args) == 1 {
					found, err := storage.Find(cmd.Context(), store, args[0])
					if err != nil {
						return errs.Wrap(err, "Could not find the thread.")
					}
					id = found.ID
				} else {
					if !present.IsInputTTY() {
						return errs.Error{Reason: "Which thread? Pass an id, id prefix or title."}
					}
					threads, err := store.Threads(cmd.Context())
					if err != nil {
						return errs.Wrap(err, "Could not list threads.")
					}
					if id, err = selectThread(threads); err != nil || id == "" {
						return err
					}
				}
				return rt.printThread(cmd.Context(), cmd.OutOrStdout(), store, id)
			})
		},
	}
	cmd.Flags().IntVar(&rt.flags.wordWrap, "word-wrap", 0, present.StdoutStyles().FlagDesc.Render(helpText["word-wrap"]))
	return cmd
}

// lister is a durable store that can enumerate its threads.
type lister interface {
	storage.Store
	storage.Lister
}

func (rt *runtime) withLister(fn func(lister) error) error {
	if rt.cfg.Store.Driver == config.StoreMemory {
		return errs.Error{
			Err:    errs.UserErrorf("pass --store jsonl --store-path DIR or --store sqlite --store-path FILE"),
			Reason: "History needs a durable store.",
		}
	}
	store, err := storage.Open(rt.cfg.Store, rt.logger)
	if err != nil {
		return errs.Wrapf(err, "Could not open the %s store.", rt.cfg.Store.Driver)
	}
	defer store.Close() //nolint:errcheck

	l, ok := store.(lister)
	if !ok {
		return errs.Error{Reason: fmt.Sprintf("The %s store cannot list threads.", rt.cfg.Store.Driver)}
	}
	return fn(l)
}

// recentThreads lists threads, keeping those updated within since when it is
// positive.
func recentThreads(ctx context.Context, store storage.Lister, since time.Duration, now time.Time) ([]storage.ThreadInfo, error) {
	threads, err := store.Threads(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "Could not list threads.")
	}
	if since <= 0 {
		return threads, nil
	}
	cutoff := now.Add(-since)
	kept := threads[:0]
	for _, th := range threads {
		if th.UpdatedAt.After(cutoff) {
			kept = append(kept, th)
		}
	}
	return kept, nil
}

func (rt *runtime) printThread(ctx context.Context, w io.Writer, store storage.Store, id string) error {
	msgs, err := store.Load(ctx, id)
	if err != nil {
		return errs.Wrap(err, "There was an error loading the thread.")
	}
	_, err = fmt.Fprint(w, present.Markdown(proto.Conversation(msgs).String(), rt.cfg.WordWrap))
	return err
}

func threadOptions(threads []storage.ThreadInfo) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(threads))
	for _, th := range threads {
		timea := present.StdoutStyles().Timeago.Render(timeago.Of(th.UpdatedAt))
		left := present.StdoutStyles().ThreadID.Render(storage.ShortID(th.ID))
		right := present.StdoutStyles().ThreadList.Render(th.Title, timea)
		opts = append(opts, huh.NewOption(left+" "+right, th.ID))
	}
	return opts
}

func selectThread(threads []storage.ThreadInfo) (string, error) {
	var selected string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Threads").
				Value(&selected).
				Options(threadOptions(threads)...),
		),
	).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", nil
		}
		return "", errs.Wrap(err, "Prompt failed.")
	}
	return selected, nil
}

func printThreads(w io.Writer, styles present.Styles, threads []storage.ThreadInfo) {
	for _, th := range threads {
		_, _ = fmt.Fprintf(
			w,
			"%s\t%s\t%d\t%s\n",
			styles.ThreadID.Render(storage.ShortID(th.ID)),
			th.Title,
			th.Messages,
			styles.Timeago.Render(timeago.Of(th.UpdatedAt)),
		)
	}
}

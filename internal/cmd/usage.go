package cmd

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/dotcommander/threadline/internal/present"
)

func useLine(cmd *cobra.Command) string {
	appName := cmd.CommandPath()
	if !cmd.HasParent() && present.StdoutRenderer().ColorProfile() == termenv.TrueColor {
		appName = present.Gradient(present.StdoutStyles().AppName, appName)
	}
	args := "[OPTIONS]"
	if cmd.HasAvailableSubCommands() {
		args = "[COMMAND] [OPTIONS]"
	}
	return fmt.Sprintf("%s %s", appName, present.StdoutStyles().CliArgs.Render(args))
}

func usageFunc(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	styles := present.StdoutStyles()

	fmt.Fprintf(w, "Usage:\n  %s\n\n", useLine(cmd))

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(w, "Commands:")
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() {
				continue
			}
			fmt.Fprintf(w, "  %-20s %s\n", styles.Flag.Render(sub.Name()), styles.FlagDesc.Render(sub.Short))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Options:")
	printFlags(w, styles, cmd.LocalFlags())
	if inherited := cmd.InheritedFlags(); inherited.HasAvailableFlags() {
		printFlags(w, styles, inherited)
	}

	if cmd.HasExample() {
		if code, ok := examples[cmd.Example]; ok {
			fmt.Fprintf(
				w,
				"\nExample:\n  %s\n  %s\n",
				styles.Comment.Render("# "+cmd.Example),
				cheapHighlighting(styles, code),
			)
		}
	}
	return nil
}

func printFlags(w io.Writer, styles present.Styles, flags *flag.FlagSet) {
	flags.VisitAll(func(f *flag.Flag) {
		if f.Hidden {
			return
		}
		if f.Shorthand == "" {
			fmt.Fprintf(
				w,
				"  %-44s %s\n",
				styles.Flag.Render("--"+f.Name),
				styles.FlagDesc.Render(f.Usage),
			)
			return
		}
		fmt.Fprintf(
			w,
			"  %s%s %-40s %s\n",
			styles.Flag.Render("-"+f.Shorthand),
			styles.FlagComma,
			styles.Flag.Render("--"+f.Name),
			styles.FlagDesc.Render(f.Usage),
		)
	})
}

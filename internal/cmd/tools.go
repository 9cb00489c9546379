package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dotcommander/threadline/internal/fantasybridge"
	"github.com/dotcommander/threadline/internal/present"
	"github.com/dotcommander/threadline/internal/proto"
)

func newToolsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		Long:  "List the built-in web search tool and every tool discovered on enabled MCP servers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			httpClient, err := fantasybridge.ProxyClient(rt.cfg.HTTPProxy)
			if err != nil {
				return err
			}
			reg, svc, err := buildTools(cmd.Context(), rt.cfg, httpClient, rt.logger)
			if err != nil {
				return err
			}
			if svc != nil {
				defer func() {
					if err := svc.Close(); err != nil {
						rt.logger.Warn("mcp close failed", slog.Any("error", err))
					}
				}()
			}
			printTools(cmd.OutOrStdout(), present.StdoutStyles(), reg.Definitions())
			return nil
		},
	}
}

func printTools(w io.Writer, styles present.Styles, defs []proto.ToolDefinition) {
	if len(defs) == 0 {
		fmt.Fprintln(w, styles.Comment.Render("No tools registered."))
		return
	}
	for _, def := range defs {
		fmt.Fprintf(w, "%s  %s\n", styles.Tool.Render(def.Name), styles.Comment.Render(present.Preview(def.Description, 100)))
	}
}

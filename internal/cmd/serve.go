package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dotcommander/threadline/internal/server"
)

func newServeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.runServe(cmd.Context())
		},
	}
	initListenFlags(cmd, &rt.flags)
	return cmd
}

func (rt *runtime) runServe(ctx context.Context) error {
	a, err := newApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	rt.logger.Info("starting",
		"version", rt.build.Version,
		"model", rt.cfg.Model.API+"/"+rt.cfg.Model.Name,
		"store", rt.cfg.Store.Driver,
		"tools", a.tools.Len(),
	)
	return server.New(rt.cfg.Server, a.service, rt.logger).Run(ctx)
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Execute wires commands and runs Cobra until SIGINT or SIGTERM.
func Execute(build BuildInfo) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(build)
	if err := root.ExecuteContext(ctx); err != nil {
		drainStdin()
		handleError(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic
	}
}

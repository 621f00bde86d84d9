package cmd

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wagiedev/stdiomux"
	"github.com/wagiedev/stdiomux/internal/mcp"
)

func newDemoServerCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "demo-server",
		Short: "Run a demo MCP server on stdin/stdout",
		Long: `Run a small MCP server over stdio with the tools echo, add, sleep,
progress and stderr. Use it as a session command to try stdiomux:

  [[session]]
  id = "demo"
  command = "stdiomux demo-server"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := stdiomux.NewTextLogger(cmd.ErrOrStderr(), logLevel)

			err := mcp.Serve(ctx, log, stdiomux.Version, cmd.ErrOrStderr())
			if errors.Is(err, io.EOF) || errors.Is(err, ctx.Err()) {
				return nil
			}

			return err
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	return cmd
}

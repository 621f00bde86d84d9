// Package cmd provides CLI commands for the stdiomux tool.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wagiedev/stdiomux"
)

// sessionFlags are shared by commands that start sessions.
type sessionFlags struct {
	manifest string
	timeout  time.Duration
	strict   bool
	logLevel string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.manifest, "manifest", "m", "", "Session manifest (.toml, .yaml or .yml)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Reply timeout (default 5s, or $STDIOMUX_REPLY_TIMEOUT)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Only accept a response carrying the request's id as its reply")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	_ = cmd.MarkFlagRequired("manifest")
}

// managerOptions maps the flags onto manager options. Logs go to the
// command's stderr so stdout stays machine-readable.
func (f *sessionFlags) managerOptions(cmd *cobra.Command) []stdiomux.Option {
	opts := []stdiomux.Option{
		stdiomux.WithLogger(stdiomux.NewTextLogger(cmd.ErrOrStderr(), f.logLevel)),
		stdiomux.WithStrictCorrelation(f.strict),
	}

	if f.timeout > 0 {
		opts = append(opts, stdiomux.WithReplyTimeout(f.timeout))
	}

	return opts
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "stdiomux",
		Short:   "Multiplex line-delimited JSON-RPC over many stdio processes",
		Version: stdiomux.Version,
		Long: `stdiomux starts long-lived worker processes that speak line-delimited
JSON-RPC over stdin and stdout, routes requests to them by session id,
and streams every line they print as JSON events.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(), newSendCmd(), newDemoServerCmd(), newVersionCmd())

	return root
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		// Errors already printed by cobra
		return 1
	}

	return 0
}

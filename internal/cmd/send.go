package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/wagiedev/stdiomux"
	"github.com/wagiedev/stdiomux/internal/manifest"
)

type sendFlags struct {
	sessionFlags

	session string
	message string
}

func newSendCmd() *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Start one session from a manifest, send one message and print the reply",
		Long: `Start the named session, write one JSON-RPC message to it and print the
reply line. Notifications print nothing. The session is stopped afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, &f)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVarP(&f.session, "session", "s", "", "Session id from the manifest")
	cmd.Flags().StringVar(&f.message, "message", "", "JSON-RPC message to send")

	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func runSend(cmd *cobra.Command, f *sendFlags) error {
	m, err := manifest.Load(f.manifest)
	if err != nil {
		return err
	}

	entry, ok := m.Lookup(f.session)
	if !ok {
		return fmt.Errorf("session %q not found in %s", f.session, f.manifest)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return stdiomux.WithManager(ctx, func(mgr *stdiomux.Manager) error {
		if _, err := mgr.Start(ctx, entry.ID, entry.Command, entry.Env); err != nil {
			return err
		}

		reply, err := mgr.Send(ctx, entry.ID, f.message)
		if err != nil {
			return err
		}

		if reply != "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
		}

		return err
	}, f.managerOptions(cmd)...)
}

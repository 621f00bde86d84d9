package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/stdiomux"
	"github.com/wagiedev/stdiomux/internal/manifest"
)

// shutdownTimeout bounds how long run waits for sessions to stop.
const shutdownTimeout = 10 * time.Second

type runFlags struct {
	sessionFlags

	watch bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every session in a manifest and route commands from stdin",
		Long: `Start every session listed in the manifest and print one JSON record per
line to stdout: "started" when a session comes up, "event" for every line a
session prints, and "reply" or "error" for each command.

Commands are read from stdin, one per line, as the session id followed by a
space and the JSON-RPC message:

  fs {"jsonrpc":"2.0","id":1,"method":"tools/list"}

run exits when stdin is closed or on interrupt, stopping every session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, &f)
		},
	}

	f.register(cmd)
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Start sessions added to the manifest while running")

	return cmd
}

func runRun(cmd *cobra.Command, f *runFlags) error {
	m, err := manifest.Load(f.manifest)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := stdiomux.NewTextLogger(cmd.ErrOrStderr(), f.logLevel).With("component", "cli")

	var updates <-chan *manifest.Manifest

	if f.watch {
		updates, err = manifest.Watch(ctx, log, f.manifest)
		if err != nil {
			return err
		}
	}

	out := newRecordWriter(cmd.OutOrStdout())

	// Every line reaches the output; Close waits for the sink to drain.
	events := stdiomux.WithEventSink(func(ev stdiomux.Event) {
		if err := out.write(eventRecord(ev)); err != nil {
			log.Warn("Failed to write event", "session_id", ev.SessionID, "error", err)
		}
	})

	mgr := stdiomux.New(append(f.managerOptions(cmd), events)...)

	var eg errgroup.Group

	startEntries(ctx, mgr, out, m.Sessions)

	if updates != nil {
		eg.Go(func() error {
			prev := m
			for next := range updates {
				startEntries(ctx, mgr, out, manifest.Added(prev, next))
				prev = next
			}

			return nil
		})
	}

	eg.Go(func() error {
		defer cancel()

		return routeCommands(ctx, mgr, out, cmd.InOrStdin())
	})

	<-ctx.Done()

	log.Info("Shutting down", "sessions", len(mgr.List()))

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()

	closeErr := mgr.Close(closeCtx)

	if err := eg.Wait(); err != nil {
		return err
	}

	return closeErr
}

// startEntries starts each entry, reporting the outcome as a record.
func startEntries(ctx context.Context, mgr *stdiomux.Manager, out *recordWriter, entries []manifest.Entry) {
	for _, entry := range entries {
		msg, err := mgr.Start(ctx, entry.ID, entry.Command, entry.Env)
		if err != nil {
			_ = out.write(errorRecord(entry.ID, err))

			continue
		}

		_ = out.write(record{Type: recordStarted, Session: entry.ID, Message: msg})
	}
}

// routeCommands sends each stdin command to its session and writes the
// outcome. Commands run concurrently; those for one session are answered
// in order. It returns when input ends (after in-flight commands finish)
// or ctx is cancelled.
func routeCommands(ctx context.Context, mgr *stdiomux.Manager, out *recordWriter, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		readErr <- scanner.Err()
	}()

	var (
		wg     sync.WaitGroup
		queues = make(map[string]chan string)
	)

	defer func() {
		for _, q := range queues {
			close(q)
		}

		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read commands: %w", err)
					}
				default:
				}

				return nil
			}

			if strings.TrimSpace(line) == "" {
				continue
			}

			id, raw, err := parseCommand(line)
			if err != nil {
				_ = out.write(errorRecord("", err))

				continue
			}

			q, ok := queues[id]
			if !ok {
				q = make(chan string, 16)
				queues[id] = q

				wg.Go(func() {
					for raw := range q {
						sendOne(ctx, mgr, out, id, raw)
					}
				})
			}

			select {
			case q <- raw:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func sendOne(ctx context.Context, mgr *stdiomux.Manager, out *recordWriter, id, raw string) {
	reply, err := mgr.Send(ctx, id, raw)
	if err != nil {
		_ = out.write(errorRecord(id, err))

		return
	}

	_ = out.write(replyRecord(id, reply))
}

// parseCommand splits "<session-id> <message>".
func parseCommand(line string) (string, string, error) {
	id, raw, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok || id == "" || strings.TrimSpace(raw) == "" {
		return "", "", fmt.Errorf("invalid command %q: want \"<session-id> <json>\"", line)
	}

	return id, strings.TrimSpace(raw), nil
}

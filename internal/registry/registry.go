package registry

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/stdiomux/internal/broadcast"
	"github.com/wagiedev/stdiomux/internal/config"
	"github.com/wagiedev/stdiomux/internal/errors"
	"github.com/wagiedev/stdiomux/internal/protocol"
	"github.com/wagiedev/stdiomux/internal/subprocess"
)

// Exit statuses the shell uses for a command it cannot run.
const (
	exitNotExecutable = 126
	exitNotFound      = 127
)

// Registry maps session identifiers to live sessions.
type Registry struct {
	log        *slog.Logger
	baseLog    *slog.Logger
	options    *config.Options
	pub        broadcast.Publisher
	correlator *protocol.Correlator

	mu sync.Mutex
	// A nil entry reserves an id while its process is being spawned.
	sessions map[string]*Session
	closed   bool
}

// New creates an empty registry. Output of every session is published to pub.
func New(options *config.Options, pub broadcast.Publisher) *Registry {
	options = options.WithDefaults()

	return &Registry{
		log:        options.Logger.With("component", "registry"),
		baseLog:    options.Logger,
		options:    options,
		pub:        pub,
		correlator: protocol.NewCorrelator(options.Logger, *options.ReplyTimeout, options.StrictCorrelation),
		sessions:   make(map[string]*Session, 4),
	}
}

// Start spawns commandLine through the platform shell and registers it as id.
//
// The child inherits the manager's environment followed by env. On success
// the returned confirmation reads "Process <id> started successfully".
func (r *Registry) Start(
	ctx context.Context,
	id string,
	commandLine string,
	env []subprocess.EnvVar,
) (string, error) {
	if id == "" {
		return "", errors.ErrInvalidSessionID
	}

	if err := r.reserve(id); err != nil {
		return "", err
	}

	sess := newSession(r.baseLog, r.pub, id, commandLine, r.options.HandoffBuffer)

	proc, err := subprocess.Start(r.baseLog.With("component", "subprocess", "session_id", id), subprocess.Spec{
		Command:     commandLine,
		Env:         env,
		Dir:         r.options.Dir,
		Shell:       r.options.Shell,
		MaxLineSize: r.options.MaxLineSize,
	}, sess.handlers())
	if err != nil {
		r.release(id)
		r.log.Warn("Failed to spawn session", "session_id", id, "error", err)

		return "", &errors.SpawnError{SessionID: id, Command: commandLine, ExitCode: -1, Err: err}
	}

	sess.proc = proc

	if err := r.probe(ctx, sess); err != nil {
		r.release(id)

		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sess.detach()

		_ = proc.Stop(context.Background(), 0)

		return "", errors.ErrManagerClosed
	}

	r.sessions[id] = sess
	r.mu.Unlock()

	r.log.Info("Session started", "session_id", id, "pid", proc.Pid(), "command", commandLine)

	return fmt.Sprintf("Process %s started successfully", id), nil
}

// reserve claims id so a concurrent Start of the same id fails.
func (r *Registry) reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.ErrManagerClosed
	}

	if _, exists := r.sessions[id]; exists {
		return &errors.DuplicateSessionError{SessionID: id}
	}

	r.sessions[id] = nil

	return nil
}

// release drops a reservation made by reserve.
func (r *Registry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[id]; ok && sess == nil {
		delete(r.sessions, id)
	}
}

// probe waits briefly for the shell to report that it cannot run the command.
func (r *Registry) probe(ctx context.Context, sess *Session) error {
	window := *r.options.SpawnProbe
	if window <= 0 {
		return nil
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil

	case <-ctx.Done():
		sess.detach()
		_ = sess.proc.Kill()

		return ctx.Err()

	case <-sess.proc.Done():
		code := sess.proc.ExitCode()
		if code != exitNotExecutable && code != exitNotFound {
			// The command ran and finished; the session stays registered as dead.
			return nil
		}

		r.log.Warn("Shell could not run command", "session_id", sess.id, "exit_code", code)

		return &errors.SpawnError{
			SessionID: sess.id,
			Command:   sess.command,
			ExitCode:  code,
			Stderr:    sess.proc.Stderr(),
		}
	}
}

// Send delivers raw to the session and returns its reply, or "" for a
// notification. The registry lock is not held while waiting.
func (r *Registry) Send(ctx context.Context, id string, raw string) (string, error) {
	sess, err := r.lookup(id)
	if err != nil {
		return "", err
	}

	return r.correlator.Send(ctx, sess, raw)
}

func (r *Registry) lookup(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.sessions[id]
	if sess == nil {
		return nil, &errors.SessionNotFoundError{SessionID: id}
	}

	return sess, nil
}

// take removes and returns the session registered as id.
func (r *Registry) take(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.sessions[id]
	if sess == nil {
		return nil
	}

	delete(r.sessions, id)

	return sess
}

// Stop unregisters the session, closes its stdin and waits up to the stop
// grace period for it to exit before killing it.
func (r *Registry) Stop(ctx context.Context, id string) error {
	sess := r.take(id)
	if sess == nil {
		return &errors.SessionNotFoundError{SessionID: id}
	}

	return r.stop(ctx, sess)
}

func (r *Registry) stop(ctx context.Context, sess *Session) error {
	sess.detach()

	r.log.Info("Stopping session", "session_id", sess.id)

	if err := sess.proc.Stop(ctx, r.options.StopGrace); err != nil {
		return fmt.Errorf("stop session %q: %w", sess.id, err)
	}

	return nil
}

// Remove unregisters the session and kills its process if it is still
// running. It reports whether the id was registered.
func (r *Registry) Remove(id string) bool {
	sess := r.take(id)
	if sess == nil {
		return false
	}

	sess.detach()

	if err := sess.proc.Kill(); err != nil {
		r.log.Warn("Failed to kill removed session", "session_id", id, "error", err)
	}

	r.log.Info("Session removed", "session_id", id)

	return true
}

// Get returns a snapshot of the session registered as id.
func (r *Registry) Get(id string) (SessionInfo, bool) {
	sess, err := r.lookup(id)
	if err != nil {
		return SessionInfo{}, false
	}

	return sess.Info(), true
}

// List returns snapshots of all registered sessions sorted by id.
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()

	sessions := make([]*Session, 0, len(r.sessions))

	for _, sess := range r.sessions {
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}

	r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}

	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return infos
}

// Close stops every session concurrently and rejects later starts.
// Errors from individual sessions are joined.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return nil
	}

	r.closed = true

	sessions := make([]*Session, 0, len(r.sessions))

	for id, sess := range r.sessions {
		if sess != nil {
			sessions = append(sessions, sess)
			delete(r.sessions, id)
		}
	}

	r.mu.Unlock()

	r.log.Info("Closing registry", "sessions", len(sessions))

	var eg errgroup.Group

	errs := make([]error, len(sessions))

	for i, sess := range sessions {
		eg.Go(func() error {
			errs[i] = r.stop(ctx, sess)

			return nil
		})
	}

	_ = eg.Wait()

	return stderrors.Join(errs...)
}

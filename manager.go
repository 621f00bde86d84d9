package stdiomux

import (
	"context"
	"errors"

	"github.com/wagiedev/stdiomux/internal/broadcast"
	"github.com/wagiedev/stdiomux/internal/registry"
)

// Manager supervises a set of long-lived child processes that speak
// line-delimited JSON-RPC over stdin and stdout.
//
// Each session is identified by a caller-chosen string. Every line a session
// writes to stdout or stderr is published as an Event; stdout lines are also
// the source of replies for Send.
//
// A Manager is safe for concurrent use. Sends to one session are serialized;
// sends to different sessions proceed independently.
//
// Example usage:
//
//	m := stdiomux.New(stdiomux.WithLogger(slog.Default()))
//	defer m.Close(ctx)
//
//	if _, err := m.Start(ctx, "fs", "npx -y @modelcontextprotocol/server-filesystem /tmp", nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := m.Send(ctx, "fs", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
type Manager struct {
	hub      *broadcast.Hub
	registry *registry.Registry
}

// New creates a manager with no sessions.
func New(opts ...Option) *Manager {
	options := applyOptions(opts).WithDefaults()

	hub := broadcast.NewHub(options.Logger, options.SubscriberBuffer, options.EventSinks...)

	return &Manager{
		hub:      hub,
		registry: registry.New(options, hub),
	}
}

// Start launches commandLine through the platform shell (sh -c, or cmd /C on
// Windows) and registers it as id. The process inherits the manager's
// environment followed by env.
//
// On success it returns "Process <id> started successfully".
// Returns ErrInvalidSessionID, DuplicateSessionError, SpawnError or
// ErrManagerClosed on failure; no session is registered in that case.
func (m *Manager) Start(ctx context.Context, id, commandLine string, env []EnvVar) (string, error) {
	return m.registry.Start(ctx, id, commandLine, env)
}

// Send writes raw, a single JSON-RPC 2.0 request or notification, to the
// session's stdin.
//
// A notification (no id, or a null id) returns "" once written. A request
// returns the next line the session writes to stdout, verbatim, unless
// strict correlation is enabled. Returns SessionNotFoundError,
// MalformedMessageError, WriteError, ReplyTimeoutError or ErrSessionExited
// on failure, or ctx.Err() when ctx ends first.
func (m *Manager) Send(ctx context.Context, id, raw string) (string, error) {
	return m.registry.Send(ctx, id, raw)
}

// Stop unregisters the session, closes its stdin and kills the process if
// it has not exited within the stop grace period.
func (m *Manager) Stop(ctx context.Context, id string) error {
	return m.registry.Stop(ctx, id)
}

// Remove unregisters the session and kills its process if still running.
// It reports whether the session existed.
func (m *Manager) Remove(id string) bool {
	return m.registry.Remove(id)
}

// Get returns a snapshot of a session.
func (m *Manager) Get(id string) (SessionInfo, bool) {
	return m.registry.Get(id)
}

// List returns snapshots of all sessions, sorted by id.
// Sessions whose process exited remain listed until stopped or removed.
func (m *Manager) List() []SessionInfo {
	return m.registry.List()
}

// Subscribe returns a subscription receiving every event that matches filter.
//
// Delivery never blocks the sessions: when the subscription's buffer is full
// the event is dropped and counted in Dropped. Call Close when done.
func (m *Manager) Subscribe(filter Filter) *Subscription {
	return m.hub.Subscribe(filter)
}

// AddEventSink registers a callback for every event published from now on.
// Each sink runs on its own goroutine and receives every event in order; a
// slow sink never delays the sessions or other sinks.
func (m *Manager) AddEventSink(sink func(Event)) {
	m.hub.AddSink(sink)
}

// Close stops every session, closes all subscriptions and waits for event
// sinks to receive what was already published, all bounded by ctx.
// Start returns ErrManagerClosed afterwards.
func (m *Manager) Close(ctx context.Context) error {
	err := m.registry.Close(ctx)

	return errors.Join(err, m.hub.Close(ctx))
}

package stdiomux

import (
	"github.com/wagiedev/stdiomux/internal/broadcast"
	"github.com/wagiedev/stdiomux/internal/registry"
	"github.com/wagiedev/stdiomux/internal/subprocess"
)

// EnvVar is one environment override for a session's process.
// Overrides are applied after the manager's environment; later entries win.
type EnvVar = subprocess.EnvVar

// SessionInfo is a point-in-time snapshot of a session.
type SessionInfo = registry.SessionInfo

// Event is one line read from a session's stdout or stderr.
type Event = broadcast.Event

// Stream names the output stream an Event was read from.
type Stream = broadcast.Stream

// Stream kinds.
const (
	StreamStdout = broadcast.StreamStdout
	StreamStderr = broadcast.StreamStderr
)

// Filter selects events by session and stream. Empty fields match everything.
type Filter = broadcast.Filter

// Subscription delivers events matching a Filter until closed.
type Subscription = broadcast.Subscription

package stdiomux

import "github.com/wagiedev/stdiomux/internal/errors"

// Re-export error types from internal package

// DuplicateSessionError indicates a start for an identifier that is already registered.
type DuplicateSessionError = errors.DuplicateSessionError

// SpawnError indicates the command could not be started.
type SpawnError = errors.SpawnError

// SessionNotFoundError indicates an operation referenced an unknown identifier.
type SessionNotFoundError = errors.SessionNotFoundError

// MalformedMessageError indicates the outbound text is not a valid protocol message.
type MalformedMessageError = errors.MalformedMessageError

// WriteError indicates writing to a session's stdin failed.
type WriteError = errors.WriteError

// ReplyTimeoutError indicates a request got no reply within the reply window.
type ReplyTimeoutError = errors.ReplyTimeoutError

// StdioMuxError is the base interface for all session manager errors.
type StdioMuxError = errors.StdioMuxError

// Re-export sentinel errors from internal package.
var (
	// ErrReplyTimeout indicates no reply line arrived within the reply window.
	ErrReplyTimeout = errors.ErrReplyTimeout

	// ErrSessionExited indicates the session's process exited before replying.
	ErrSessionExited = errors.ErrSessionExited

	// ErrManagerClosed indicates the manager has been closed and cannot start sessions.
	ErrManagerClosed = errors.ErrManagerClosed

	// ErrInvalidSessionID indicates an empty session identifier.
	ErrInvalidSessionID = errors.ErrInvalidSessionID

	// ErrNotRequestOrNotification indicates the outbound message is a response.
	ErrNotRequestOrNotification = errors.ErrNotRequestOrNotification

	// ErrStdinClosed indicates the session's stdin was already closed.
	ErrStdinClosed = errors.ErrStdinClosed
)

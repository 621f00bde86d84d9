package errors

import (
	"errors"
	"fmt"
	"time"
)

// StdioMuxError is the base interface for all session manager errors.
type StdioMuxError interface {
	error
	IsStdioMuxError() bool
}

// Compile-time verification that all error types implement StdioMuxError.
var (
	_ StdioMuxError = (*DuplicateSessionError)(nil)
	_ StdioMuxError = (*SpawnError)(nil)
	_ StdioMuxError = (*SessionNotFoundError)(nil)
	_ StdioMuxError = (*MalformedMessageError)(nil)
	_ StdioMuxError = (*WriteError)(nil)
	_ StdioMuxError = (*ReplyTimeoutError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrReplyTimeout indicates no reply line arrived within the reply window.
	ErrReplyTimeout = errors.New("reply timeout")

	// ErrSessionExited indicates the session's process has exited and its
	// stdout is exhausted, so no reply can arrive.
	ErrSessionExited = errors.New("session process exited")

	// ErrManagerClosed indicates the manager has been closed and cannot start sessions.
	ErrManagerClosed = errors.New("manager closed")

	// ErrInvalidSessionID indicates an empty session identifier.
	ErrInvalidSessionID = errors.New("session id must not be empty")

	// ErrNotRequestOrNotification indicates the outbound message has no method,
	// i.e. it is a response rather than a request or notification.
	ErrNotRequestOrNotification = errors.New("message is not a request or notification")

	// ErrStdinClosed indicates the session's stdin was already closed.
	ErrStdinClosed = errors.New("stdin closed")
)

// DuplicateSessionError indicates a start for an identifier that is already registered.
type DuplicateSessionError struct {
	SessionID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("session %q already exists", e.SessionID)
}

// IsStdioMuxError implements StdioMuxError.
func (e *DuplicateSessionError) IsStdioMuxError() bool { return true }

// SpawnError indicates the shell could not start the command, or a standard
// stream could not be captured. No session is registered when this is returned.
type SpawnError struct {
	SessionID string
	Command   string
	ExitCode  int
	Stderr    string
	Err       error
}

func (e *SpawnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to spawn session %q: %v", e.SessionID, e.Err)
	}

	return fmt.Sprintf("failed to spawn session %q (exit %d): %s", e.SessionID, e.ExitCode, e.Stderr)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsStdioMuxError implements StdioMuxError.
func (e *SpawnError) IsStdioMuxError() bool { return true }

// SessionNotFoundError indicates an operation referenced an unknown identifier.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.SessionID)
}

// IsStdioMuxError implements StdioMuxError.
func (e *SessionNotFoundError) IsStdioMuxError() bool { return true }

// MalformedMessageError indicates the outbound text is not a valid protocol
// message. The text was not written to the process.
type MalformedMessageError struct {
	Raw string
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// IsStdioMuxError implements StdioMuxError.
func (e *MalformedMessageError) IsStdioMuxError() bool { return true }

// WriteError indicates writing or flushing the session's stdin failed.
// The session is most likely dead.
type WriteError struct {
	SessionID string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to session %q: %v", e.SessionID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsStdioMuxError implements StdioMuxError.
func (e *WriteError) IsStdioMuxError() bool { return true }

// ReplyTimeoutError indicates a request got no reply line within Timeout.
// The session stays registered and usable.
type ReplyTimeoutError struct {
	SessionID string
	RequestID any
	Timeout   time.Duration
}

func (e *ReplyTimeoutError) Error() string {
	return fmt.Sprintf("session %q: no reply to request %v after %s", e.SessionID, e.RequestID, e.Timeout)
}

// Unwrap returns ErrReplyTimeout so errors.Is(err, ErrReplyTimeout) holds.
func (e *ReplyTimeoutError) Unwrap() error {
	return ErrReplyTimeout
}

// IsStdioMuxError implements StdioMuxError.
func (e *ReplyTimeoutError) IsStdioMuxError() bool { return true }

package registry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/stdiomux/internal/broadcast"
	"github.com/wagiedev/stdiomux/internal/protocol"
	"github.com/wagiedev/stdiomux/internal/subprocess"
)

// Compile-time verification that Session can be driven by the correlator.
var _ protocol.Target = (*Session)(nil)

// SessionInfo is a point-in-time snapshot of a session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Pid       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Running   bool      `json:"running"`

	// ExitCode is the process exit code once it has exited, -1 while it is
	// running or when it was terminated by a signal.
	ExitCode int `json:"exit_code"`
}

// Session is one supervised child process.
type Session struct {
	log *slog.Logger
	pub broadcast.Publisher

	id        string
	command   string
	startedAt time.Time
	proc      *subprocess.Process

	// sendMu serializes write-then-wait exchanges.
	sendMu sync.Mutex

	// replies is written only by the stdout reader and closed by the reaper.
	replies  chan string
	detached atomic.Bool
}

func newSession(log *slog.Logger, pub broadcast.Publisher, id, command string, handoff int) *Session {
	return &Session{
		log:       log.With("component", "session", "session_id", id),
		pub:       pub,
		id:        id,
		command:   command,
		startedAt: time.Now(),
		replies:   make(chan string, handoff),
	}
}

// SessionID implements protocol.Target.
func (s *Session) SessionID() string { return s.id }

// Lock implements protocol.Target.
func (s *Session) Lock() { s.sendMu.Lock() }

// Unlock implements protocol.Target.
func (s *Session) Unlock() { s.sendMu.Unlock() }

// Replies implements protocol.Target.
func (s *Session) Replies() <-chan string { return s.replies }

// WriteLine implements protocol.Target.
func (s *Session) WriteLine(ctx context.Context, data []byte) error {
	return s.proc.WriteLine(ctx, data)
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:        s.id,
		Command:   s.command,
		Pid:       s.proc.Pid(),
		StartedAt: s.startedAt,
		Running:   !s.proc.Exited(),
		ExitCode:  s.proc.ExitCode(),
	}
}

// handlers wires the session to its process streams.
func (s *Session) handlers() subprocess.Handlers {
	return subprocess.Handlers{
		Stdout: s.onStdout,
		Stderr: s.onStderr,
		Exit:   s.onExit,
	}
}

func (s *Session) onStdout(line string) {
	s.handoff(line)
	s.pub.Publish(s.id, broadcast.StreamStdout, line)
}

func (s *Session) onStderr(line string) {
	s.pub.Publish(s.id, broadcast.StreamStderr, line)
	s.log.Debug("stderr", "line", line)
}

// onExit runs after both readers have finished, so nothing sends on
// replies after it is closed.
func (s *Session) onExit(exitCode int, err error) {
	close(s.replies)

	if s.detached.Load() {
		s.log.Debug("Stopped session exited", "exit_code", exitCode)

		return
	}

	if err != nil {
		s.log.Info("Session exited", "exit_code", exitCode, "error", err)
	} else {
		s.log.Info("Session exited", "exit_code", exitCode)
	}
}

// handoff queues line for a waiting request without ever blocking the
// reader. When the queue is full the oldest line is discarded.
func (s *Session) handoff(line string) {
	if s.detached.Load() {
		return
	}

	for {
		select {
		case s.replies <- line:
			return
		default:
		}

		select {
		case old := <-s.replies:
			s.log.Debug("Reply queue full, dropped oldest line", "line", old)
		default:
		}
	}
}

// detach stops forwarding stdout to the reply queue. Broadcast continues
// until the process exits.
func (s *Session) detach() {
	s.detached.Store(true)
}

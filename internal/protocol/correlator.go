package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wagiedev/stdiomux/internal/errors"
)

// Target is the session side of an exchange.
//
// The Locker serializes exchanges so at most one request per session waits
// on Replies at a time.
type Target interface {
	sync.Locker

	// SessionID identifies the session in errors and logs.
	SessionID() string

	// WriteLine writes one line to the process's stdin and flushes it.
	WriteLine(ctx context.Context, data []byte) error

	// Replies yields stdout lines in order. It is closed once the process
	// has exited and its stdout is exhausted.
	Replies() <-chan string
}

// Correlator decides whether a message awaits a reply and resolves the wait.
type Correlator struct {
	log     *slog.Logger
	timeout time.Duration
	strict  bool
}

// NewCorrelator creates a correlator that waits at most timeout for a reply.
// When strict is set, only a response carrying the request's id resolves it.
func NewCorrelator(log *slog.Logger, timeout time.Duration, strict bool) *Correlator {
	return &Correlator{
		log:     log.With("component", "correlator"),
		timeout: timeout,
		strict:  strict,
	}
}

// Timeout returns the reply window.
func (c *Correlator) Timeout() time.Duration {
	return c.timeout
}

// Send validates raw, writes it to the target, and returns the reply.
//
// Notifications return "" as soon as the write is flushed. Requests return
// the next stdout line verbatim, or a *errors.ReplyTimeoutError when none
// arrives in time. Nothing is written when raw fails validation.
func (c *Correlator) Send(ctx context.Context, t Target, raw string) (string, error) {
	env, err := Parse(raw)
	if err != nil {
		c.log.Debug("Rejected malformed message", "session_id", t.SessionID(), "error", err)

		return "", err
	}

	t.Lock()
	defer t.Unlock()

	c.log.Debug("Sending message", "session_id", t.SessionID(), "method", env.Method, "request", env.IsRequest())

	if err := t.WriteLine(ctx, []byte(env.Raw)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		return "", &errors.WriteError{SessionID: t.SessionID(), Err: err}
	}

	if !env.IsRequest() {
		return "", nil
	}

	return c.await(ctx, t, env)
}

// await blocks until a reply line for env arrives, the timeout fires, or ctx ends.
func (c *Correlator) await(ctx context.Context, t Target, env *Envelope) (string, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	replies := t.Replies()

	for {
		select {
		case line, ok := <-replies:
			if !ok {
				c.log.Debug("Session output ended while awaiting reply",
					"session_id", t.SessionID(), "request_id", env.RequestID())

				return "", fmt.Errorf("await reply from %q: %w", t.SessionID(), errors.ErrSessionExited)
			}

			if c.strict && !isReplyTo(line, env.ID) {
				c.log.Debug("Skipping line that does not answer the request",
					"session_id", t.SessionID(), "request_id", env.RequestID())

				continue
			}

			c.log.Debug("Received reply", "session_id", t.SessionID(), "request_id", env.RequestID())

			return line, nil

		case <-timer.C:
			c.log.Warn("Request timed out", "session_id", t.SessionID(),
				"request_id", env.RequestID(), "timeout", c.timeout)

			return "", &errors.ReplyTimeoutError{
				SessionID: t.SessionID(),
				RequestID: env.RequestID(),
				Timeout:   c.timeout,
			}

		case <-ctx.Done():
			c.log.Debug("Request cancelled", "session_id", t.SessionID(), "request_id", env.RequestID())

			return "", ctx.Err()
		}
	}
}

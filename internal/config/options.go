// Package config provides configuration types for the session manager.
package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/wagiedev/stdiomux/internal/broadcast"
)

const (
	// DefaultReplyTimeout bounds how long a request waits for its reply line.
	DefaultReplyTimeout = 5 * time.Second

	// DefaultHandoffBuffer is the capacity of a session's reply hand-off queue.
	DefaultHandoffBuffer = 256

	// DefaultSpawnProbe is how long Start watches a new process for an
	// immediate "command not found" exit from the shell.
	DefaultSpawnProbe = 100 * time.Millisecond

	// DefaultStopGrace is how long Stop waits after closing stdin before killing.
	DefaultStopGrace = 2 * time.Second

	// DefaultMaxLineSize is the maximum size of one stdout/stderr line.
	// Longer lines are skipped.
	DefaultMaxLineSize = 16 * 1024 * 1024 // 16MB

	// ReplyTimeoutEnv overrides the reply timeout when no option is set.
	// Accepts a Go duration ("750ms") or whole seconds ("10").
	ReplyTimeoutEnv = "STDIOMUX_REPLY_TIMEOUT"
)

// Options configures the behavior of the session manager.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// ReplyTimeout bounds the wait for a request's reply.
	// If nil, falls back to STDIOMUX_REPLY_TIMEOUT, then DefaultReplyTimeout.
	ReplyTimeout *time.Duration

	// HandoffBuffer is the capacity of each session's reply queue.
	// When full, the oldest queued line is discarded.
	HandoffBuffer int

	// SubscriberBuffer is the channel capacity of each event subscription.
	SubscriberBuffer int

	// SpawnProbe is how long Start waits for an immediate shell failure.
	// If nil, DefaultSpawnProbe is used. Zero disables the probe.
	SpawnProbe *time.Duration

	// StopGrace is how long Stop waits for a clean exit before killing.
	StopGrace time.Duration

	// MaxLineSize caps the length of a single output line. A longer line
	// is skipped whole and reading continues with the next one.
	MaxLineSize int

	// StrictCorrelation makes requests skip stdout lines that are not a
	// response carrying the request's id. Off by default: the next stdout
	// line is taken as the reply.
	StrictCorrelation bool

	// Shell overrides the platform shell, e.g. []string{"bash", "-c"}.
	// The command line is appended as the final argument.
	Shell []string

	// Dir is the working directory for spawned processes.
	// If empty, processes inherit the manager's working directory.
	Dir string

	// EventSinks receive every stdout/stderr line of every session.
	EventSinks []broadcast.SinkFunc
}

// WithDefaults returns a copy of the options with zero values replaced by defaults.
func (o *Options) WithDefaults() *Options {
	out := Options{}
	if o != nil {
		out = *o
	}

	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if out.ReplyTimeout == nil {
		timeout := replyTimeoutFromEnv()
		out.ReplyTimeout = &timeout
	}

	if out.HandoffBuffer <= 0 {
		out.HandoffBuffer = DefaultHandoffBuffer
	}

	if out.SpawnProbe == nil {
		probe := DefaultSpawnProbe
		out.SpawnProbe = &probe
	}

	if out.StopGrace <= 0 {
		out.StopGrace = DefaultStopGrace
	}

	if out.MaxLineSize <= 0 {
		out.MaxLineSize = DefaultMaxLineSize
	}

	return &out
}

// replyTimeoutFromEnv returns the reply timeout from the env var, or the default.
func replyTimeoutFromEnv() time.Duration {
	raw := os.Getenv(ReplyTimeoutEnv)
	if raw == "" {
		return DefaultReplyTimeout
	}

	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}

	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}

	return DefaultReplyTimeout
}

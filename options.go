package stdiomux

import (
	"log/slog"
	"time"

	"github.com/wagiedev/stdiomux/internal/config"
)

// Options configures a Manager. Build it with the With* functions.
type Options = config.Options

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to an Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithReplyTimeout bounds how long Send waits for a request's reply.
// If not set, STDIOMUX_REPLY_TIMEOUT is consulted, then the 5s default.
func WithReplyTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ReplyTimeout = &timeout
	}
}

// WithStrictCorrelation makes requests wait for a response carrying their
// own id, skipping notifications and unrelated lines. By default the next
// stdout line is taken as the reply.
func WithStrictCorrelation(strict bool) Option {
	return func(o *Options) {
		o.StrictCorrelation = strict
	}
}

// ===== Process Configuration =====

// WithShell overrides the shell used to run session commands,
// e.g. []string{"bash", "-c"}. The command line is appended as the final argument.
func WithShell(shell ...string) Option {
	return func(o *Options) {
		o.Shell = shell
	}
}

// WithDir sets the working directory for spawned processes.
func WithDir(dir string) Option {
	return func(o *Options) {
		o.Dir = dir
	}
}

// WithSpawnProbe sets how long Start waits to detect a command the shell
// cannot run. Zero disables the probe.
func WithSpawnProbe(window time.Duration) Option {
	return func(o *Options) {
		o.SpawnProbe = &window
	}
}

// WithStopGrace sets how long Stop waits for a process to exit after its
// stdin is closed before killing it.
func WithStopGrace(grace time.Duration) Option {
	return func(o *Options) {
		o.StopGrace = grace
	}
}

// WithMaxLineSize caps the length of a single stdout or stderr line.
// Longer lines are skipped and never become replies or events. Default is 16MB.
func WithMaxLineSize(size int) Option {
	return func(o *Options) {
		o.MaxLineSize = size
	}
}

// WithHandoffBuffer sets how many unconsumed stdout lines a session queues
// for replies. When the queue is full the oldest line is discarded.
func WithHandoffBuffer(size int) Option {
	return func(o *Options) {
		o.HandoffBuffer = size
	}
}

// ===== Event Configuration =====

// WithSubscriberBuffer sets the channel capacity of each Subscribe call.
func WithSubscriberBuffer(size int) Option {
	return func(o *Options) {
		o.SubscriberBuffer = size
	}
}

// WithEventSink registers a callback invoked for every stdout and stderr
// line of every session, in order. Each sink runs on its own goroutine with
// an unbounded backlog, so a slow sink never stalls the sessions.
func WithEventSink(sink func(Event)) Option {
	return func(o *Options) {
		o.EventSinks = append(o.EventSinks, sink)
	}
}

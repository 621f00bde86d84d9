package broadcast

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Stream identifies which standard stream a line came from.
type Stream string

const (
	// StreamStdout tags lines read from a process's stdout.
	StreamStdout Stream = "stdout"
	// StreamStderr tags lines read from a process's stderr.
	StreamStderr Stream = "stderr"
)

// Event is a single line of output from a supervised process.
type Event struct {
	// ID is a monotonic ULID, unique within the process.
	ID        ulid.ULID `json:"id"`
	SessionID string    `json:"session_id"` //nolint:tagliatelle // wire format uses snake_case
	Stream    Stream    `json:"stream"`
	Line      string    `json:"line"`
	Time      time.Time `json:"time"`
}

// Filter selects events for a subscription. Empty fields match everything.
type Filter struct {
	SessionID string
	Stream    Stream
}

// Match reports whether the event passes the filter.
func (f Filter) Match(ev Event) bool {
	if f.SessionID != "" && f.SessionID != ev.SessionID {
		return false
	}

	if f.Stream != "" && f.Stream != ev.Stream {
		return false
	}

	return true
}

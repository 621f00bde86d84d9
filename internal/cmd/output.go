package cmd

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/wagiedev/stdiomux"
)

// Output record types written by run.
const (
	recordStarted = "started"
	recordEvent   = "event"
	recordReply   = "reply"
	recordError   = "error"
)

// record is one JSON line of run output.
type record struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`

	// Started
	Message string `json:"message,omitempty"`

	// Event
	ID     string          `json:"id,omitempty"`
	Stream stdiomux.Stream `json:"stream,omitempty"`
	Line   *string         `json:"line,omitempty"`
	Time   *time.Time      `json:"time,omitempty"`

	// Reply
	Reply *string `json:"reply,omitempty"`

	// Error
	Error string `json:"error,omitempty"`
}

func eventRecord(ev stdiomux.Event) record {
	return record{
		Type:    recordEvent,
		Session: ev.SessionID,
		ID:      ev.ID.String(),
		Stream:  ev.Stream,
		Line:    &ev.Line,
		Time:    &ev.Time,
	}
}

func replyRecord(session, reply string) record {
	return record{Type: recordReply, Session: session, Reply: &reply}
}

func errorRecord(session string, err error) record {
	return record{Type: recordError, Session: session, Error: err.Error()}
}

// recordWriter serializes records from concurrent goroutines, one per line.
type recordWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newRecordWriter(w io.Writer) *recordWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	return &recordWriter{enc: enc}
}

func (w *recordWriter) write(r record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.enc.Encode(r)
}

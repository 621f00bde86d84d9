package protocol

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/stdiomux/internal/errors"
)

// envelopeSchema is the structural shape of an outbound message. Only the
// fields needed to route it are checked; the version tag, id and params
// are passed through as written.
const envelopeSchema = `{
  "type": "object",
  "required": ["jsonrpc", "method"],
  "properties": {
    "jsonrpc": {"type": "string"},
    "method":  {"type": "string", "minLength": 1}
  }
}`

var (
	errMultiline = stderrors.New("message spans multiple lines")
	errNotObject = stderrors.New("message is not a JSON object")
)

var resolvedEnvelope = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(envelopeSchema), &schema); err != nil {
		return nil, fmt.Errorf("unmarshal envelope schema: %w", err)
	}

	return schema.Resolve(&jsonschema.ResolveOptions{})
})

// Envelope is a validated outbound message.
type Envelope struct {
	// Raw is the message text as it will be written, without a trailing newline.
	Raw string

	Method string

	// ID is the correlation id exactly as written; nil for notifications.
	ID json.RawMessage
}

// IsRequest reports whether a reply is expected.
func (e *Envelope) IsRequest() bool {
	return e.ID != nil
}

// RequestID returns the decoded id for logs and errors: a string, a
// json.Number, or whatever other JSON value the caller used.
func (e *Envelope) RequestID() any {
	id, err := decodeID(e.ID)
	if err != nil {
		return string(e.ID)
	}

	return id
}

// Parse validates raw as a single-line request or notification: a JSON
// object with a string "jsonrpc" tag and a non-empty string "method".
// Any id other than null makes it a request.
//
// Parse returns a *errors.MalformedMessageError on any failure.
func Parse(raw string) (*Envelope, error) {
	text := strings.TrimRight(raw, "\r\n")

	if strings.ContainsAny(text, "\r\n") {
		return nil, malformed(raw, errMultiline)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, malformed(raw, err)
	}

	if fields == nil {
		return nil, malformed(raw, errNotObject)
	}

	if isResponse(fields) {
		return nil, malformed(raw, errors.ErrNotRequestOrNotification)
	}

	schema, err := resolvedEnvelope()
	if err != nil {
		return nil, malformed(raw, err)
	}

	var instance any
	if err := json.Unmarshal([]byte(text), &instance); err != nil {
		return nil, malformed(raw, err)
	}

	if err := schema.Validate(instance); err != nil {
		return nil, malformed(raw, err)
	}

	var method string
	if err := json.Unmarshal(fields["method"], &method); err != nil {
		return nil, malformed(raw, err)
	}

	env := &Envelope{Raw: text, Method: method}

	if id, ok := fields["id"]; ok && !isNull(id) {
		env.ID = id
	}

	return env, nil
}

func malformed(raw string, err error) error {
	return &errors.MalformedMessageError{Raw: raw, Err: err}
}

// isResponse reports whether fields look like a reply rather than a call.
func isResponse(fields map[string]json.RawMessage) bool {
	if _, ok := fields["method"]; ok {
		return false
	}

	_, hasResult := fields["result"]
	_, hasError := fields["error"]

	return hasResult || hasError
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// decodeID decodes an id keeping numbers in their written form, so 1 and
// 1.5 stay distinct.
func decodeID(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var id any
	if err := dec.Decode(&id); err != nil {
		return nil, err
	}

	return id, nil
}

// isReplyTo reports whether line is a response (result or error, no
// method) carrying id.
func isReplyTo(line string, id json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil || fields == nil {
		return false
	}

	if !isResponse(fields) {
		return false
	}

	got, ok := fields["id"]
	if !ok {
		return false
	}

	want, err := decodeID(id)
	if err != nil {
		return false
	}

	have, err := decodeID(got)
	if err != nil {
		return false
	}

	return reflect.DeepEqual(want, have)
}

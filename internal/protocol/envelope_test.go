package protocol

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdiomux/internal/errors"
)

func TestParse_RequestsAndNotifications(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		method    string
		isRequest bool
		id        any
	}{
		{
			name:      "numeric id",
			raw:       `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			method:    "tools/list",
			isRequest: true,
			id:        json.Number("1"),
		},
		{
			name:      "string id with params",
			raw:       `{"jsonrpc":"2.0","id":"abc","method":"tools/call","params":{"name":"echo"}}`,
			method:    "tools/call",
			isRequest: true,
			id:        "abc",
		},
		{
			name:   "absent id",
			raw:    `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			method: "notifications/initialized",
		},
		{
			name:   "null id",
			raw:    `{"jsonrpc":"2.0","id":null,"method":"notifications/cancelled","params":[1]}`,
			method: "notifications/cancelled",
		},
		{
			name:      "trailing newline trimmed",
			raw:       "{\"jsonrpc\":\"2.0\",\"id\":2,\"method\":\"ping\"}\r\n",
			method:    "ping",
			isRequest: true,
			id:        json.Number("2"),
		},
		{
			name:      "other version tag",
			raw:       `{"jsonrpc":"1.0","id":3,"method":"ping"}`,
			method:    "ping",
			isRequest: true,
			id:        json.Number("3"),
		},
		{
			name:      "scalar params",
			raw:       `{"jsonrpc":"2.0","id":"s","method":"echo","params":"s"}`,
			method:    "echo",
			isRequest: true,
			id:        "s",
		},
		{
			name:      "bool id",
			raw:       `{"jsonrpc":"2.0","id":true,"method":"ping"}`,
			method:    "ping",
			isRequest: true,
			id:        true,
		},
		{
			name:      "fractional id kept as written",
			raw:       `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`,
			method:    "ping",
			isRequest: true,
			id:        json.Number("1.5"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env, err := Parse(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.method, env.Method)
			require.Equal(t, tc.isRequest, env.IsRequest())
			require.NotContains(t, env.Raw, "\n")

			if tc.isRequest {
				require.Equal(t, tc.id, env.RequestID())
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `hello`},
		{name: "truncated", raw: `{"jsonrpc":"2.0","method":`},
		{name: "array", raw: `[1,2]`},
		{name: "missing version", raw: `{"id":1,"method":"ping"}`},
		{name: "version not a string", raw: `{"jsonrpc":2,"id":1,"method":"ping"}`},
		{name: "null", raw: `null`},
		{name: "empty method", raw: `{"jsonrpc":"2.0","id":1,"method":""}`},
		{name: "missing method", raw: `{"jsonrpc":"2.0","id":1}`},
		{name: "method not a string", raw: `{"jsonrpc":"2.0","id":1,"method":5}`},
		{name: "multi-line", raw: "{\"jsonrpc\":\"2.0\",\n\"method\":\"ping\"}"},
		{name: "empty", raw: ``},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(tc.raw)
			require.Error(t, err)

			malformedErr, ok := stderrors.AsType[*errors.MalformedMessageError](err)
			require.True(t, ok, "expected MalformedMessageError, got %T", err)
			require.Equal(t, tc.raw, malformedErr.Raw)
		})
	}
}

func TestParse_ResponseIsRejected(t *testing.T) {
	t.Parallel()

	_, err := Parse(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	require.ErrorIs(t, err, errors.ErrNotRequestOrNotification)
}

func TestIsReplyTo(t *testing.T) {
	t.Parallel()

	req, err := Parse(`{"jsonrpc":"2.0","id":7,"method":"ping"}`)
	require.NoError(t, err)

	require.True(t, isReplyTo(`{"jsonrpc":"2.0","id":7,"result":{}}`, req.ID))
	require.True(t, isReplyTo(`{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"nope"}}`, req.ID))
	require.False(t, isReplyTo(`{"jsonrpc":"2.0","id":8,"result":{}}`, req.ID))
	require.False(t, isReplyTo(`{"jsonrpc":"2.0","id":"7","result":{}}`, req.ID))
	require.False(t, isReplyTo(`{"jsonrpc":"2.0","method":"notifications/progress"}`, req.ID))
	require.False(t, isReplyTo(`server starting...`, req.ID))
	require.False(t, isReplyTo(`{"jsonrpc":"2.0","id":7,"method":"ping"}`, req.ID))
}

func TestIsReplyTo_ComparesIDsAsWritten(t *testing.T) {
	t.Parallel()

	fractional, err := Parse(`{"jsonrpc":"2.0","id":1.5,"method":"ping"}`)
	require.NoError(t, err)

	require.False(t, isReplyTo(`{"jsonrpc":"2.0","id":1,"result":{}}`, fractional.ID))
	require.True(t, isReplyTo(`{"jsonrpc":"2.0","id":1.5,"result":{}}`, fractional.ID))

	escaped, err := Parse(`{"jsonrpc":"2.0","id":"a\u0062","method":"ping"}`)
	require.NoError(t, err)

	require.True(t, isReplyTo(`{"jsonrpc":"2.0","id":"ab","result":null}`, escaped.ID))

	boolID, err := Parse(`{"jsonrpc":"2.0","id":true,"method":"ping"}`)
	require.NoError(t, err)

	require.True(t, isReplyTo(`{"jsonrpc":"2.0","id":true,"error":{"code":1,"message":"x"}}`, boolID.ID))
	require.False(t, isReplyTo(`{"jsonrpc":"2.0","id":"true","result":{}}`, boolID.ID))
}

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdiomux"
)

// skipIfNoShell skips tests that need a POSIX shell.
func skipIfNoShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("Test requires a POSIX shell")
	}
}

// skipIfNoNpx skips the test if Node.js tooling is not installed.
func skipIfNoNpx(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("npx"); err != nil {
		t.Skip("npx not installed")
	}
}

// newManager returns a manager that is closed when the test ends.
func newManager(t *testing.T, opts ...stdiomux.Option) *stdiomux.Manager {
	t.Helper()

	m := stdiomux.New(opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		require.NoError(t, m.Close(ctx))
	})

	return m
}

// request formats a JSON-RPC request line.
func request(id int, method string, params any) string {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}

	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":%q,"params":%s}`, id, method, raw)
}

// decodeResult decodes a response line into out.
func decodeResult(t *testing.T, reply string, out any) {
	t.Helper()

	msg, err := jsonrpc.DecodeMessage([]byte(reply))
	require.NoError(t, err)

	resp, ok := msg.(*jsonrpc.Response)
	require.True(t, ok, "reply is not a response: %s", reply)
	require.NoError(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, out))
}

//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdiomux"
)

// TestMCPServer_FilesystemHandshake drives the reference filesystem server
// through initialize, tools/list and tools/call.
func TestMCPServer_FilesystemHandshake(t *testing.T) {
	skipIfNoNpx(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello from stdiomux"), 0o600))

	var events []stdiomux.Event

	m := newManager(t,
		stdiomux.WithStrictCorrelation(true),
		stdiomux.WithReplyTimeout(2*time.Minute),
	)

	sub := m.Subscribe(stdiomux.Filter{SessionID: "fs", Stream: stdiomux.StreamStdout})
	defer sub.Close()

	msg, err := m.Start(ctx, "fs", "npx -y @modelcontextprotocol/server-filesystem "+dir, nil)
	require.NoError(t, err)
	require.Equal(t, "Process fs started successfully", msg)

	reply, err := m.Send(ctx, "fs", request(1, "initialize", &mcp.InitializeParams{
		ProtocolVersion: "2025-06-18",
		ClientInfo:      &mcp.Implementation{Name: "stdiomux-integration", Version: stdiomux.Version},
		Capabilities:    &mcp.ClientCapabilities{},
	}))
	require.NoError(t, err)

	var initResult mcp.InitializeResult
	decodeResult(t, reply, &initResult)
	require.NotNil(t, initResult.ServerInfo)
	require.NotEmpty(t, initResult.ServerInfo.Name)

	reply, err = m.Send(ctx, "fs", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	require.NoError(t, err)
	require.Empty(t, reply)

	reply, err = m.Send(ctx, "fs", request(2, "tools/list", struct{}{}))
	require.NoError(t, err)

	var tools mcp.ListToolsResult
	decodeResult(t, reply, &tools)
	require.NotEmpty(t, tools.Tools)

	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}

	require.Contains(t, names, "read_text_file")

	reply, err = m.Send(ctx, "fs", request(3, "tools/call", map[string]any{
		"name":      "read_text_file",
		"arguments": map[string]any{"path": filepath.Join(dir, "hello.txt")},
	}))
	require.NoError(t, err)
	require.Contains(t, reply, "hello from stdiomux")

	// Every reply was also broadcast.
	deadline := time.After(5 * time.Second)

	for len(events) < 3 {
		select {
		case ev := <-sub.Events():
			events = append(events, ev)
		case <-deadline:
			require.FailNow(t, "timed out waiting for broadcast replies", "got %d", len(events))
		}
	}
}

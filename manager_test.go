package stdiomux_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdiomux"
)

func newManager(t *testing.T, opts ...stdiomux.Option) *stdiomux.Manager {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("Test requires a POSIX shell")
	}

	m := stdiomux.New(opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = m.Close(ctx)
	})

	return m
}

func TestManager_EchoRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	msg, err := m.Start(ctx, "echo", "cat", nil)
	require.NoError(t, err)
	require.Equal(t, "Process echo started successfully", msg)

	raw := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`

	reply, err := m.Send(ctx, "echo", raw)
	require.NoError(t, err)
	require.Equal(t, raw, reply)

	reply, err = m.Send(ctx, "echo", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	require.NoError(t, err)
	require.Empty(t, reply)
}

func TestManager_ErrorsAreTyped(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, stdiomux.WithReplyTimeout(200*time.Millisecond))

	_, err := m.Send(ctx, "missing", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	_, ok := errors.AsType[*stdiomux.SessionNotFoundError](err)
	require.True(t, ok)

	_, err = m.Start(ctx, "silent", "cat >/dev/null", nil)
	require.NoError(t, err)

	_, err = m.Start(ctx, "silent", "cat", nil)

	_, ok = errors.AsType[*stdiomux.DuplicateSessionError](err)
	require.True(t, ok)

	_, err = m.Send(ctx, "silent", `{"jsonrpc":"2.0","id":1`)

	_, ok = errors.AsType[*stdiomux.MalformedMessageError](err)
	require.True(t, ok)

	_, err = m.Send(ctx, "silent", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.ErrorIs(t, err, stdiomux.ErrReplyTimeout)

	sdkErr, ok := errors.AsType[stdiomux.StdioMuxError](err)
	require.True(t, ok)
	require.True(t, sdkErr.IsStdioMuxError())
}

func TestManager_SubscribeAndSink(t *testing.T) {
	ctx := context.Background()

	var (
		mu    sync.Mutex
		sunk  []stdiomux.Event
		added []stdiomux.Event
	)

	m := newManager(t, stdiomux.WithEventSink(func(ev stdiomux.Event) {
		mu.Lock()
		defer mu.Unlock()

		sunk = append(sunk, ev)
	}))

	m.AddEventSink(func(ev stdiomux.Event) {
		mu.Lock()
		defer mu.Unlock()

		added = append(added, ev)
	})

	sub := m.Subscribe(stdiomux.Filter{SessionID: "talker", Stream: stdiomux.StreamStderr})
	defer sub.Close()

	_, err := m.Start(ctx, "talker", `echo out; echo err >&2; cat >/dev/null`, nil)
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		require.Equal(t, "err", ev.Line)
		require.Equal(t, stdiomux.StreamStderr, ev.Stream)
		require.Equal(t, "talker", ev.SessionID)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for stderr event")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(sunk) == 2 && len(added) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManager_ListGetStopRemove(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, stdiomux.WithStopGrace(200*time.Millisecond))

	for _, id := range []string{"b", "a"} {
		_, err := m.Start(ctx, id, "cat", []stdiomux.EnvVar{{Key: "SESSION", Value: id}})
		require.NoError(t, err)
	}

	infos := m.List()
	require.Len(t, infos, 2)
	require.Equal(t, "a", infos[0].ID)
	require.Equal(t, "b", infos[1].ID)

	info, ok := m.Get("b")
	require.True(t, ok)
	require.True(t, info.Running)

	require.NoError(t, m.Stop(ctx, "a"))
	require.True(t, m.Remove("b"))
	require.False(t, m.Remove("b"))
	require.Empty(t, m.List())
}

func TestManager_CloseRejectsStart(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.Start(ctx, "echo", "cat", nil)
	require.NoError(t, err)

	sub := m.Subscribe(stdiomux.Filter{})

	require.NoError(t, m.Close(ctx))

	_, open := <-sub.Events()
	require.False(t, open)

	_, err = m.Start(ctx, "echo", "cat", nil)
	require.ErrorIs(t, err, stdiomux.ErrManagerClosed)
}

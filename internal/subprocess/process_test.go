package subprocess

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdiomux/internal/errors"
)

// lineCollector gathers lines delivered by a handler.
type lineCollector struct {
	mu    sync.Mutex
	lines []string
	ch    chan string
}

func newLineCollector() *lineCollector {
	return &lineCollector{ch: make(chan string, 64)}
}

func (c *lineCollector) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()

	c.ch <- line
}

func (c *lineCollector) next(t *testing.T) string {
	t.Helper()

	select {
	case line := <-c.ch:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for line")

		return ""
	}
}

func skipOnWindows(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("Test requires a POSIX shell")
	}
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process was not reaped")
	}
}

func TestShellCommand(t *testing.T) {
	name, args := ShellCommand([]string{"bash", "-c"}, "echo hi | cat")
	require.Equal(t, "bash", name)
	require.Equal(t, []string{"-c", "echo hi | cat"}, args)

	name, args = ShellCommand(nil, "echo hi")
	if runtime.GOOS == "windows" {
		require.Equal(t, "cmd", name)
		require.Equal(t, []string{"/C", "echo hi"}, args)
	} else {
		require.Equal(t, "sh", name)
		require.Equal(t, []string{"-c", "echo hi"}, args)
	}
}

func TestBuildEnvironment_AppendsOverrides(t *testing.T) {
	t.Setenv("STDIOMUX_TEST_BASE", "base")

	env := BuildEnvironment([]EnvVar{{Key: "A", Value: "1"}, {Key: "A", Value: "2"}})

	require.Contains(t, env, "STDIOMUX_TEST_BASE=base")
	require.Equal(t, []string{"A=1", "A=2"}, env[len(env)-2:])
}

func TestStart_EchoRoundTrip(t *testing.T) {
	skipOnWindows(t)

	out := newLineCollector()
	exited := make(chan int, 1)

	p, err := Start(slog.Default(), Spec{Command: "cat"}, Handlers{
		Stdout: out.add,
		Exit:   func(code int, _ error) { exited <- code },
	})
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, p.WriteLine(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	require.Equal(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, out.next(t))

	require.NoError(t, p.CloseStdin())
	waitDone(t, p)

	require.Equal(t, 0, <-exited)
	require.Equal(t, 0, p.ExitCode())
	require.True(t, p.Exited())
}

func TestStart_StderrIsSeparateAndCaptured(t *testing.T) {
	skipOnWindows(t)

	out := newLineCollector()
	errOut := newLineCollector()

	p, err := Start(slog.Default(), Spec{Command: "echo to-out; echo to-err >&2"}, Handlers{
		Stdout: out.add,
		Stderr: errOut.add,
	})
	require.NoError(t, err)

	require.Equal(t, "to-out", out.next(t))
	require.Equal(t, "to-err", errOut.next(t))

	waitDone(t, p)

	require.Equal(t, "to-err", p.Stderr())
}

func TestStart_EnvOverridesVisibleToChild(t *testing.T) {
	skipOnWindows(t)

	out := newLineCollector()

	p, err := Start(slog.Default(), Spec{
		Command: `echo "$GREETING-$TARGET"`,
		Env:     []EnvVar{{Key: "GREETING", Value: "hello"}, {Key: "TARGET", Value: "world"}},
	}, Handlers{Stdout: out.add})
	require.NoError(t, err)

	require.Equal(t, "hello-world", out.next(t))
	waitDone(t, p)
}

func TestStart_CommandNotFoundExits127(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(slog.Default(), Spec{Command: "definitely-not-a-real-command-xyz"}, Handlers{})
	require.NoError(t, err, "the shell itself starts fine")

	waitDone(t, p)

	require.Equal(t, 127, p.ExitCode())
	require.NotEmpty(t, p.Stderr())
}

func TestStart_BadShellFails(t *testing.T) {
	_, err := Start(slog.Default(), Spec{
		Command: "echo hi",
		Shell:   []string{"/nonexistent/shell-binary", "-c"},
	}, Handlers{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "start process")
}

func TestWriteLine_AfterCloseStdin(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(slog.Default(), Spec{Command: "cat"}, Handlers{})
	require.NoError(t, err)

	require.NoError(t, p.CloseStdin())
	require.NoError(t, p.CloseStdin())

	err = p.WriteLine(context.Background(), []byte("late"))
	require.ErrorIs(t, err, errors.ErrStdinClosed)

	waitDone(t, p)
}

func TestWriteLine_CancelledContext(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(slog.Default(), Spec{Command: "cat"}, Handlers{})
	require.NoError(t, err)

	defer func() { _ = p.Stop(context.Background(), time.Second) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, p.WriteLine(ctx, []byte("x")), context.Canceled)
}

func TestWriteLine_ConcurrentWritesAreSerialized(t *testing.T) {
	skipOnWindows(t)

	out := newLineCollector()

	p, err := Start(slog.Default(), Spec{Command: "cat"}, Handlers{Stdout: out.add})
	require.NoError(t, err)

	defer func() { _ = p.Stop(context.Background(), time.Second) }()

	const numWriters = 10

	var wg sync.WaitGroup

	for range numWriters {
		wg.Go(func() {
			_ = p.WriteLine(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tick"}`))
		})
	}

	wg.Wait()

	// Every line arrives intact, never interleaved with another write.
	for range numWriters {
		require.Equal(t, `{"jsonrpc":"2.0","method":"tick"}`, out.next(t))
	}
}

func TestStop_GracefulExitOnStdinClose(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(slog.Default(), Spec{Command: "cat"}, Handlers{})
	require.NoError(t, err)

	start := time.Now()

	require.NoError(t, p.Stop(context.Background(), 5*time.Second))
	require.True(t, p.Exited())
	require.Less(t, time.Since(start), 2*time.Second, "cat exits on EOF without waiting for the grace period")
}

func TestStop_KillsProcessIgnoringStdin(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(slog.Default(), Spec{Command: "trap '' TERM; sleep 30"}, Handlers{})
	require.NoError(t, err)

	require.NoError(t, p.Stop(context.Background(), 100*time.Millisecond))
	require.True(t, p.Exited())
	require.Equal(t, -1, p.ExitCode(), "killed by signal")
}

func TestKill_AfterExitIsNoop(t *testing.T) {
	skipOnWindows(t)

	p, err := Start(slog.Default(), Spec{Command: "true"}, Handlers{})
	require.NoError(t, err)

	waitDone(t, p)

	require.NoError(t, p.Kill())
}

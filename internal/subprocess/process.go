package subprocess

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/wagiedev/stdiomux/internal/errors"
)

const (
	// maxStderrTailSize caps the stderr kept for spawn failure reports.
	// Stderr lines are still delivered to the callback after the cap is hit.
	maxStderrTailSize = 64 * 1024

	// killWait is how long Stop waits for the reaper after a kill.
	killWait = 1 * time.Second
)

// EnvVar is one environment override applied on top of the manager's environment.
type EnvVar struct {
	Key   string `json:"key"   toml:"key"   yaml:"key"`
	Value string `json:"value" toml:"value" yaml:"value"`
}

// Spec describes the process to spawn.
type Spec struct {
	// Command is the command line, interpreted by the shell.
	Command string

	// Env is appended to os.Environ(); later entries win.
	Env []EnvVar

	// Dir is the working directory. Empty inherits the manager's.
	Dir string

	// Shell overrides the platform shell invocation.
	Shell []string

	// MaxLineSize caps one output line.
	MaxLineSize int
}

// Handlers receive process output and the exit notification.
// Stdout and Stderr are called from separate goroutines, each in stream order.
type Handlers struct {
	Stdout LineFunc
	Stderr LineFunc

	// Exit is called once, after both streams ended and the process was reaped.
	Exit func(exitCode int, err error)
}

// Process is a running child process with piped standard streams.
type Process struct {
	log *slog.Logger
	cmd *exec.Cmd

	mu          sync.Mutex // Protects stdin writes
	stdin       io.WriteCloser
	w           *bufio.Writer
	stdinClosed bool

	stderrMu   sync.Mutex
	stderrTail strings.Builder

	done     chan struct{}
	exitCode int
	exitErr  error
}

// ShellCommand returns the program and arguments that run commandLine
// through shell, or through the platform shell when shell is empty.
func ShellCommand(shell []string, commandLine string) (string, []string) {
	if len(shell) == 0 {
		shell = platformShell()
	}

	args := make([]string, 0, len(shell))
	args = append(args, shell[1:]...)
	args = append(args, commandLine)

	return shell[0], args
}

// BuildEnvironment returns the manager's environment followed by the overrides.
func BuildEnvironment(overrides []EnvVar) []string {
	env := os.Environ()

	for _, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", v.Key, v.Value))
	}

	return env
}

// Start spawns the process described by spec and begins reading its output.
//
// The returned error wraps the pipe or start failure; the caller decides how
// to classify it. On success the handlers start receiving lines immediately.
func Start(log *slog.Logger, spec Spec, h Handlers) (*Process, error) {
	name, args := ShellCommand(spec.Shell, spec.Command)

	//nolint:gosec // G204: running caller-supplied shell commands is the purpose of this package
	cmd := exec.Command(name, args...)
	cmd.Env = BuildEnvironment(spec.Env)
	cmd.Dir = spec.Dir
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()

		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()

		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()

		return nil, fmt.Errorf("start process: %w", err)
	}

	p := &Process{
		log:   log.With("pid", cmd.Process.Pid),
		cmd:   cmd,
		stdin: stdin,
		w:     bufio.NewWriter(stdin),
		done:  make(chan struct{}),
	}

	p.log.Debug("Process started", "shell", name, "command", spec.Command)

	maxLine := spec.MaxLineSize
	if maxLine <= 0 {
		maxLine = 16 * 1024 * 1024
	}

	go p.serve(stdout, stderr, maxLine, h)

	return p, nil
}

// serve runs both stream readers, then reaps the process.
func (p *Process) serve(stdout, stderr io.Reader, maxLine int, h Handlers) {
	var wg sync.WaitGroup

	wg.Go(func() {
		p.pump("stdout", stdout, maxLine, h.Stdout)
	})

	wg.Go(func() {
		p.pump("stderr", stderr, maxLine, func(line string) {
			p.appendStderr(line)

			if h.Stderr != nil {
				h.Stderr(line)
			}
		})
	})

	// All reads must complete before Wait closes the pipes.
	// See: https://pkg.go.dev/os/exec#Cmd.StdoutPipe
	wg.Wait()

	err := p.cmd.Wait()
	code := p.cmd.ProcessState.ExitCode()

	p.exitCode = code
	p.exitErr = err

	if err != nil {
		p.log.Debug("Process exited with error", "exit_code", code, "error", err)
	} else {
		p.log.Debug("Process exited", "exit_code", code)
	}

	if h.Exit != nil {
		h.Exit(code, err)
	}

	close(p.done)
}

// pump delivers every line of r to fn until the stream ends.
// Oversized lines are skipped with a warning. A read error ends delivery;
// the rest of the stream is discarded so the child never blocks on a full pipe.
func (p *Process) pump(stream string, r io.Reader, maxLine int, fn LineFunc) {
	lr := NewLineReader(r, maxLine)
	lr.OnOversize = func(size int) {
		p.log.Warn("Skipped oversized line", "stream", stream, "size", size, "max_line_size", maxLine)
	}

	for line := range lr.Lines() {
		if fn != nil {
			fn(line)
		}
	}

	if err := lr.Err(); err != nil {
		p.log.Debug("Stream reader stopped", "stream", stream, "error", err)

		_, _ = io.Copy(io.Discard, r)
	}
}

// appendStderr keeps the head of stderr for failure reports.
func (p *Process) appendStderr(line string) {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	if p.stderrTail.Len() >= maxStderrTailSize {
		return
	}

	if p.stderrTail.Len() > 0 {
		p.stderrTail.WriteString("\n")
	}

	p.stderrTail.WriteString(line)
}

// Stderr returns the stderr captured so far, capped at 64KB.
func (p *Process) Stderr() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	return p.stderrTail.String()
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done returns a channel that is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code, or -1 if the process is still running or
// was killed by a signal.
func (p *Process) ExitCode() int {
	if !p.Exited() {
		return -1
	}

	return p.exitCode
}

// WriteLine writes data followed by a newline to stdin and flushes it.
//
// This method is safe for concurrent use and respects context cancellation
// even during blocking writes. If ctx is cancelled while the write is blocked,
// stdin is closed to unblock it and later calls return ErrStdinClosed.
func (p *Process) WriteLine(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdinClosed {
		return errors.ErrStdinClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Write in goroutine to respect context cancellation
	done := make(chan error, 1)

	go func() {
		if _, err := p.w.Write(data); err != nil {
			done <- fmt.Errorf("write to stdin: %w", err)

			return
		}

		if err := p.w.WriteByte('\n'); err != nil {
			done <- fmt.Errorf("write to stdin: %w", err)

			return
		}

		if err := p.w.Flush(); err != nil {
			done <- fmt.Errorf("flush stdin: %w", err)

			return
		}

		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			p.log.Debug("Failed to write line to stdin", "error", err)
			// A failed bufio.Writer keeps its error; the pipe is unusable.
			p.stdinClosed = true
			_ = p.stdin.Close()
		}

		return err

	case <-ctx.Done():
		p.log.Debug("Context cancelled during write, closing stdin")
		// Close stdin to unblock the blocked Write (safe since Go 1.9+)
		_ = p.stdin.Close()
		p.stdinClosed = true

		select {
		case <-done:
		case <-time.After(1 * time.Second):
			p.log.Warn("Write goroutine did not exit after stdin close, potential leak")
		}

		return ctx.Err()
	}
}

// CloseStdin closes the stdin pipe to signal end of input.
func (p *Process) CloseStdin() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdinClosed {
		return nil
	}

	p.stdinClosed = true

	return p.stdin.Close()
}

// Kill forcefully terminates the process and anything it spawned.
// It's safe to call Kill on an already-terminated process.
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}

	if err := killProcess(p.cmd.Process); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process (pid %d): %w", p.Pid(), err)
	}

	return nil
}

// Stop closes stdin and waits up to grace for the process to exit on its
// own, then kills it. Cancelling ctx skips the rest of the grace period.
func (p *Process) Stop(ctx context.Context, grace time.Duration) error {
	_ = p.CloseStdin()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		p.log.Debug("Process did not exit within grace period, killing", "grace", grace)
	case <-ctx.Done():
		p.log.Debug("Context cancelled while stopping, killing")
	}

	if err := p.Kill(); err != nil {
		return err
	}

	select {
	case <-p.done:
	case <-time.After(killWait):
		p.log.Warn("Process output still open after kill, abandoning reaper")
	}

	return nil
}

//go:build !windows

package subprocess

import (
	stderrors "errors"
	"os"
	"os/exec"
	"syscall"
)

func platformShell() []string {
	return []string{"sh", "-c"}
}

// setProcAttr puts the child in its own process group so Kill reaches
// everything the shell spawned.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcess(proc *os.Process) error {
	err := syscall.Kill(-proc.Pid, syscall.SIGKILL)
	if err == nil || stderrors.Is(err, syscall.ESRCH) {
		return nil
	}

	return proc.Kill()
}

//go:build windows

package subprocess

import (
	"os"
	"os/exec"
)

func platformShell() []string {
	return []string{"cmd", "/C"}
}

func setProcAttr(*exec.Cmd) {}

func killProcess(proc *os.Process) error {
	return proc.Kill()
}

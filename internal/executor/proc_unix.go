//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the command in its own process group and signals
// the group on cancellation. exec.CommandContext alone kills only the direct
// child; a shell's children would keep running past the timeout.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

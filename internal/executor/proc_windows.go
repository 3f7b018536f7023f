//go:build windows

package executor

import "os/exec"

// configureProcess keeps the default cancel behavior; Windows has no process
// groups in the POSIX sense and exec's Kill terminates the child directly.
func configureProcess(cmd *exec.Cmd) {}

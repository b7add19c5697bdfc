//go:build unix

package activation

import (
	"os/exec"
	"syscall"
)

// detach moves the host into its own process group so a Ctrl+C aimed at the
// requester does not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

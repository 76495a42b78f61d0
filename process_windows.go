//go:build windows

package copilot

import (
	"os/exec"
	"syscall"
)

// configureProcAttr hides the console window of the spawned CLI so GUI
// hosts do not flash a terminal.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}

//go:build !windows

package copilot

import "os/exec"

// configureProcAttr sets platform-specific process attributes. Nothing to
// do outside Windows.
func configureProcAttr(cmd *exec.Cmd) {}

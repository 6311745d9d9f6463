//go:build windows

package quant

import "os/exec"

func setProcAttrs(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	cmd.Process.Kill()
}

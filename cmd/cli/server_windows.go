//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches the spawned server into its own process group
// so it survives the CLI exiting.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

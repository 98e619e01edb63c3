//go:build windows

package sandbox

import (
	"os/exec"
	"syscall"
)

// setNewProcessGroup places the child in its own process group on Windows via
// CREATE_NEW_PROCESS_GROUP so console signals do not propagate from this
// process's group.
func setNewProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// signalGroup has no portable group-signal primitive on Windows; fall back to
// killing the immediate child.
func signalGroup(cmd *exec.Cmd, _ syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func terminateSignal() syscall.Signal { return syscall.SIGTERM }
func killSignal() syscall.Signal      { return syscall.SIGKILL }

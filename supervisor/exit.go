package supervisor

import (
	"os/exec"
	"syscall"
)

// exitStatus decodes the error returned by cmd.Wait() into an exit code
// (nil if the process was killed by a signal rather than exiting) and a
// signal name (empty if it exited normally).
func exitStatus(err error) (code *int, signal string) {
	if err == nil {
		zero := 0
		return &zero, ""
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return nil, ""
	}

	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		c := exitErr.ExitCode()
		return &c, ""
	}

	if status.Signaled() {
		sig := status.Signal()
		return nil, sig.String()
	}

	c := status.ExitStatus()
	return &c, ""
}

//go:build unix

package supervisor

import (
	"errors"
	"os"
	"syscall"
)

// processAlive reports whether pid names a live process. Signal 0 performs
// the existence check without delivering anything; EPERM means the process
// exists but belongs to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// terminateProcess requests a fast shutdown. SIGINT makes the engine abort
// open sessions and exit cleanly; SIGTERM would wait for every session to
// end on its own and routinely run into the kill escalation.
func terminateProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGINT)
}

func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

//go:build windows

package supervisor

import "os"

// processAlive reports whether pid names a live process. FindProcess opens
// a handle on windows and fails when the process is gone.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	proc.Release()
	return true
}

// terminateProcess has no graceful signal to send on windows; both stages
// of the shutdown escalation terminate the process outright.
func terminateProcess(pid int) error {
	return killProcess(pid)
}

func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

//go:build unix

package supervisor

import "syscall"

// detachAttrs puts the engine in its own session so terminal signals aimed
// at the CLI never reach it.
func detachAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

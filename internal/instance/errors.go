package instance

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes lifecycle errors. Every failure surfaced to a caller that
// stems from instance management carries exactly one Kind, so scripts can
// branch on it (the CLI maps each Kind to a distinct exit code).
type Kind string

const (
	// KindPlatformUnsupported indicates no engine build exists for the
	// current OS/architecture/C-runtime combination.
	KindPlatformUnsupported Kind = "PLATFORM_UNSUPPORTED"

	// KindInstallationFailed indicates bundle extraction or verification of
	// the engine installation failed.
	KindInstallationFailed Kind = "INSTALLATION_FAILED"

	// KindPortUnavailable indicates no free port was found within the probe
	// budget.
	KindPortUnavailable Kind = "PORT_UNAVAILABLE"

	// KindAlreadyRunning indicates a start collided with a live instance of
	// the same name.
	KindAlreadyRunning Kind = "ALREADY_RUNNING"

	// KindNotRunning indicates the operation needs an instance that exists
	// (and, for some operations, is live), and it isn't.
	KindNotRunning Kind = "NOT_RUNNING"

	// KindDataDirCorrupt indicates the data directory is neither fresh nor a
	// usable cluster.
	KindDataDirCorrupt Kind = "DATA_DIR_CORRUPT"

	// KindProcessCrashed indicates the engine process died before readiness
	// or was found dead afterwards.
	KindProcessCrashed Kind = "PROCESS_CRASHED"

	// KindRegistryLocked indicates registry or per-instance lock contention
	// did not resolve within the wait budget.
	KindRegistryLocked Kind = "REGISTRY_LOCKED"
)

// Error is a classified lifecycle failure.
//
// Errors carry structured fields for diagnostics: the affected instance,
// the underlying cause, and free-form details such as the colliding pid or
// the tail of the engine log.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Name identifies the affected instance, when known.
	Name string

	// Err is the underlying cause, when any.
	Err error

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Name != "" {
		fmt.Fprintf(&b, " (instance=%s)", e.Name)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the error category from err, unwrapping as needed.
// Returns "" when err carries no lifecycle classification.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// HasKind reports whether err is classified as k.
// Uses errors.As to handle wrapped errors.
func HasKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// IsAlreadyRunning reports whether err is an already-running collision.
func IsAlreadyRunning(err error) bool { return HasKind(err, KindAlreadyRunning) }

// IsNotRunning reports whether err is a missing or stopped instance error.
func IsNotRunning(err error) bool { return HasKind(err, KindNotRunning) }

// IsRegistryLocked reports whether err is a lock contention timeout.
func IsRegistryLocked(err error) bool { return HasKind(err, KindRegistryLocked) }

// IsProcessCrashed reports whether err is an engine crash error.
func IsProcessCrashed(err error) bool { return HasKind(err, KindProcessCrashed) }

// IsDataDirCorrupt reports whether err is a corrupt data directory error.
func IsDataDirCorrupt(err error) bool { return HasKind(err, KindDataDirCorrupt) }

// NewPlatformUnsupported creates an Error for an OS/arch combination with no
// engine build.
func NewPlatformUnsupported(goos, goarch string) *Error {
	return &Error{
		Kind:    KindPlatformUnsupported,
		Message: fmt.Sprintf("no embedded engine build for %s/%s", goos, goarch),
		Details: map[string]string{"os": goos, "arch": goarch},
	}
}

// NewInstallationFailed creates an Error for a failed engine installation.
func NewInstallationFailed(version, platform, message string, err error) *Error {
	return &Error{
		Kind:    KindInstallationFailed,
		Message: message,
		Err:     err,
		Details: map[string]string{"version": version, "platform": platform},
	}
}

// NewPortUnavailable creates an Error for an exhausted port probe budget.
func NewPortUnavailable(start, attempts int) *Error {
	return &Error{
		Kind:    KindPortUnavailable,
		Message: fmt.Sprintf("no free port in %d attempts starting at %d", attempts, start),
		Details: map[string]string{
			"start":    fmt.Sprintf("%d", start),
			"attempts": fmt.Sprintf("%d", attempts),
		},
	}
}

// NewAlreadyRunning creates an Error for a start colliding with a live
// instance.
func NewAlreadyRunning(name string, pid int) *Error {
	return &Error{
		Kind:    KindAlreadyRunning,
		Message: fmt.Sprintf("instance already running (pid: %d)", pid),
		Name:    name,
		Details: map[string]string{"pid": fmt.Sprintf("%d", pid)},
	}
}

// NewNotRunning creates an Error for an operation against a missing or
// stopped instance.
func NewNotRunning(name, message string) *Error {
	return &Error{
		Kind:    KindNotRunning,
		Message: message,
		Name:    name,
	}
}

// NewDataDirCorrupt creates an Error for a data directory that is neither
// fresh nor a valid cluster.
func NewDataDirCorrupt(path, reason string, err error) *Error {
	return &Error{
		Kind:    KindDataDirCorrupt,
		Message: reason,
		Err:     err,
		Details: map[string]string{"data_dir": path},
	}
}

// NewProcessCrashed creates an Error for an engine process that died. The
// tail of the engine log, when available, rides along in Details under
// "log_tail".
func NewProcessCrashed(name, message, logTail string) *Error {
	e := &Error{
		Kind:    KindProcessCrashed,
		Message: message,
		Name:    name,
	}
	if logTail != "" {
		e.Details = map[string]string{"log_tail": logTail}
	}
	return e
}

// NewRegistryLocked creates an Error for lock contention that outlived the
// wait budget.
func NewRegistryLocked(name, message string, err error) *Error {
	return &Error{
		Kind:    KindRegistryLocked,
		Message: message,
		Name:    name,
		Err:     err,
	}
}

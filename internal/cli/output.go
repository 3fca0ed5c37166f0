package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pgden/pgden/internal/instance"
)

// Exit codes for CLI commands. 0-2 follow shell convention; every error
// kind gets its own code above 9 so scripts can branch on the failure
// class without parsing messages.
const (
	ExitSuccess = 0 // Successful execution
	ExitFailure = 1 // Unclassified failure
	ExitUsage   = 2 // Bad invocation (invalid name, unknown flag value)

	ExitPlatformUnsupported = 10
	ExitInstallationFailed  = 11
	ExitPortUnavailable     = 12
	ExitAlreadyRunning      = 13
	ExitNotRunning          = 14
	ExitDataDirCorrupt      = 15
	ExitProcessCrashed      = 16
	ExitRegistryLocked      = 17
)

var kindExitCodes = map[instance.Kind]int{
	instance.KindPlatformUnsupported: ExitPlatformUnsupported,
	instance.KindInstallationFailed:  ExitInstallationFailed,
	instance.KindPortUnavailable:     ExitPortUnavailable,
	instance.KindAlreadyRunning:      ExitAlreadyRunning,
	instance.KindNotRunning:          ExitNotRunning,
	instance.KindDataDirCorrupt:      ExitDataDirCorrupt,
	instance.KindProcessCrashed:      ExitProcessCrashed,
	instance.KindRegistryLocked:      ExitRegistryLocked,
}

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// GetExitCode maps an error to the process exit code: an explicit
// ExitError wins, then the error taxonomy, then the generic failure code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if code, ok := kindExitCodes[instance.KindOf(err)]; ok {
		return code
	}
	return ExitFailure
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"human", "json"}

// addOutputFlag registers -o on commands that have a JSON rendering.
func addOutputFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "output", "o", "human", "output format (human|json)")
}

func checkFormat(format string) error {
	for _, f := range ValidFormats {
		if f == format {
			return nil
		}
	}
	return NewExitError(ExitUsage, fmt.Sprintf("invalid output format %q: must be one of %v", format, ValidFormats))
}

// writeJSON renders v indented. JSON output is exactly the documented
// shape, never wrapped in an envelope, so scripts can consume it directly.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pgden/pgden/internal/datadir"
	"github.com/pgden/pgden/internal/install"
	"github.com/pgden/pgden/internal/instance"
	"github.com/pgden/pgden/internal/platform"
)

// launchPostgres starts the engine as a detached process. Output lands in
// the startup log until the logging collector inside the engine takes over.
// The process must outlive this CLI invocation, so it is deliberately not
// bound to ctx.
func launchPostgres(ctx context.Context, installDir string, p platform.Platform, inst *instance.Instance) (int, error) {
	bin := install.BinPath(installDir, "postgres", p)

	logPath := datadir.StartupLogPath(inst.DataDir)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open startup log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(bin, "-D", inst.DataDir)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = detachAttrs()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start engine process: %w", err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits so a dead engine does not linger as a
	// zombie and fool liveness checks.
	go cmd.Wait()

	return pid, nil
}

// Package datadir prepares instance data directories: bootstrapping fresh
// ones with initdb, validating existing ones, and keeping the managed
// configuration block in postgresql.conf current.
package datadir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pgden/pgden/internal/install"
	"github.com/pgden/pgden/internal/instance"
	"github.com/pgden/pgden/internal/platform"
)

// State classifies a data directory before the engine touches it.
type State string

const (
	// StateFresh means the directory is missing or empty and needs initdb.
	StateFresh State = "fresh"
	// StateReady means a previous bootstrap completed.
	StateReady State = "ready"
	// StateCorrupt means the directory has content but no engine marker,
	// typically a partially deleted or foreign directory.
	StateCorrupt State = "corrupt"
)

// versionMarker is written by initdb as the final step of a successful
// bootstrap.
const versionMarker = "PG_VERSION"

// RunFunc executes a control binary and returns its combined output.
type RunFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Manager prepares data directories against one engine installation.
type Manager struct {
	InstallDir string
	Platform   platform.Platform

	// Run is replaceable in tests.
	Run RunFunc
}

// New returns a Manager that executes the installation's real binaries.
func New(installDir string, p platform.Platform) *Manager {
	return &Manager{InstallDir: installDir, Platform: p, Run: runCombined}
}

func runCombined(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).CombinedOutput()
}

// Inspect classifies a data directory without modifying it.
func Inspect(dir string) (State, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return StateFresh, nil
	}
	if err != nil {
		return "", instance.NewDataDirCorrupt(dir, "unreadable data directory", err)
	}
	if len(entries) == 0 {
		return StateFresh, nil
	}
	if _, err := os.Stat(filepath.Join(dir, versionMarker)); err == nil {
		return StateReady, nil
	}
	return StateCorrupt, nil
}

// Prepare makes the instance's data directory ready for the engine to
// start. Fresh directories are bootstrapped with initdb; existing ones are
// validated. The managed configuration block is rewritten either way so
// port and setting changes take effect on the next start.
func (m *Manager) Prepare(ctx context.Context, inst *instance.Instance) error {
	state, err := Inspect(inst.DataDir)
	if err != nil {
		return err
	}

	switch state {
	case StateCorrupt:
		return instance.NewDataDirCorrupt(inst.DataDir, "directory is not empty and has no PG_VERSION marker", nil)
	case StateFresh:
		if err := m.bootstrap(ctx, inst); err != nil {
			return err
		}
	}

	if err := WriteManagedConfig(inst); err != nil {
		return err
	}
	return os.MkdirAll(LogDir(inst.DataDir), 0o755)
}

// bootstrap runs initdb. The cluster superuser is always postgres;
// application roles are provisioned after first startup. On failure the
// half-written directory is removed so the next attempt starts fresh
// instead of reading it as corrupt.
func (m *Manager) bootstrap(ctx context.Context, inst *instance.Instance) error {
	slog.Info("initializing data directory", "instance", inst.Name, "dir", inst.DataDir)

	if err := os.MkdirAll(filepath.Dir(inst.DataDir), 0o755); err != nil {
		return instance.NewDataDirCorrupt(inst.DataDir, "create parent directory", err)
	}

	pwfile, err := writePasswordFile(inst.Password)
	if err != nil {
		return instance.NewDataDirCorrupt(inst.DataDir, "write password file", err)
	}
	defer os.Remove(pwfile)

	initdb := install.BinPath(m.InstallDir, "initdb", m.Platform)
	out, err := m.Run(ctx, initdb,
		"-D", inst.DataDir,
		"-U", "postgres",
		"--pwfile="+pwfile,
		"--auth=md5",
		"-E", "UTF8",
	)
	if err != nil {
		os.RemoveAll(inst.DataDir)
		reason := fmt.Sprintf("initdb failed: %s", lastLines(out, 5))
		return instance.NewDataDirCorrupt(inst.DataDir, reason, err)
	}
	return nil
}

// LogDir returns the engine log directory inside a data directory.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "log")
}

// StartupLogPath returns the file capturing engine output from before the
// logging collector takes over.
func StartupLogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), "startup.log")
}

func writePasswordFile(password string) (string, error) {
	f, err := os.CreateTemp("", "pgden-pw-*")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(password + "\n"); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// lastLines returns up to n trailing non-empty lines of command output.
func lastLines(out []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			kept = append([]string{line}, kept...)
		}
	}
	return strings.Join(kept, "\n")
}

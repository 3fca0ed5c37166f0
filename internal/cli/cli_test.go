package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/install"
	"github.com/pgden/pgden/internal/instance"
	"github.com/pgden/pgden/internal/platform"
	"github.com/pgden/pgden/internal/ports"
	"github.com/pgden/pgden/internal/registry"
	"github.com/pgden/pgden/internal/supervisor"
)

// cliWorld is an in-memory process table backing the supervisor hooks, so
// commands run end to end without a real engine.
type cliWorld struct {
	mu         sync.Mutex
	nextPID    int
	alive      map[int]bool
	busyPorts  map[int]bool
	logContent string
}

func newCLIWorld() *cliWorld {
	return &cliWorld{nextPID: 4000, alive: map[int]bool{}, busyPorts: map[int]bool{}}
}

func (w *cliWorld) launch(ctx context.Context, installDir string, p platform.Platform, inst *instance.Instance) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextPID++
	pid := w.nextPID
	w.alive[pid] = true
	return pid, nil
}

func (w *cliWorld) prepare(ctx context.Context, inst *instance.Instance, installDir string, p platform.Platform) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(inst.DataDir, 0o755); err != nil {
		return err
	}
	if w.logContent == "" {
		return nil
	}
	logDir := filepath.Join(inst.DataDir, "log")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(logDir, "postgresql-1.log"), []byte(w.logContent), 0o644)
}

func (w *cliWorld) isAlive(pid int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive[pid]
}

func (w *cliWorld) terminate(pid int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alive[pid] = false
	return nil
}

func (w *cliWorld) markDead(pid int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alive[pid] = false
}

func (w *cliWorld) markPortBusy(port int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busyPorts[port] = true
}

type nopListener struct{}

func (nopListener) Accept() (net.Conn, error) { return nil, net.ErrClosed }
func (nopListener) Close() error              { return nil }
func (nopListener) Addr() net.Addr            { return &net.TCPAddr{} }

func (w *cliWorld) listen(network, address string) (net.Listener, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busyPorts[port] {
		return nil, errors.New("address already in use")
	}
	return nopListener{}, nil
}

type failingSource struct{}

func (failingSource) Open(version string, p platform.Platform) (io.ReadCloser, error) {
	return nil, errors.New("tests must not extract bundles")
}

const testVersion = "18.1.0"
const testTag = "x86_64-unknown-linux-gnu"

// setupCLI points the CLI at a temp home and swaps the supervisor factory
// for one whose process hooks hit the in-memory world.
func setupCLI(t *testing.T) (*cliWorld, string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)

	dir := config.InstallDir(home, testVersion, testTag)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".pgden-verified"), []byte(testVersion+"\n"), 0o644))

	w := newCLIWorld()
	prev := supervisorFactory
	supervisorFactory = func() (*supervisor.Supervisor, func() error, error) {
		reg, err := registry.Open(config.RegistryPath(home))
		if err != nil {
			return nil, nil, err
		}
		mgr := &install.Manager{Home: home, Source: failingSource{}, Registry: reg}
		cfg := supervisor.Config{
			Home:           home,
			HealthInterval: time.Millisecond,
			HealthTimeout:  250 * time.Millisecond,
			StopTimeout:    50 * time.Millisecond,
			StopPoll:       time.Millisecond,
			LockWait:       250 * time.Millisecond,
			Detector: &platform.Detector{
				GOOS:         "linux",
				GOARCH:       "amd64",
				MuslLoader:   func(string) bool { return false },
				GlibcVersion: func() (int, int, bool) { return 2, 35, true },
			},
			Ports:  &ports.Allocator{Listen: w.listen},
			Launch: w.launch,
			Probe: func(ctx context.Context, port int, password string) error {
				return nil
			},
			Alive:     w.isAlive,
			Terminate: w.terminate,
			Kill: func(pid int) error {
				w.markDead(pid)
				return nil
			},
			Provision: func(ctx context.Context, inst *instance.Instance) error {
				return nil
			},
			Prepare: w.prepare,
		}
		return supervisor.New(reg, mgr, cfg), reg.Close, nil
	}
	t.Cleanup(func() { supervisorFactory = prev })
	return w, home
}

// runCLI executes one command line against a fresh root command and
// returns what it printed.
func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), errBuf.String(), err
}

// normalizeHome makes output path-independent for golden comparison.
func normalizeHome(out, home string) string {
	return strings.ReplaceAll(out, home, "<home>")
}

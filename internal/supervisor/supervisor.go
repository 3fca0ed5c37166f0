package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/datadir"
	"github.com/pgden/pgden/internal/install"
	"github.com/pgden/pgden/internal/instance"
	"github.com/pgden/pgden/internal/platform"
	"github.com/pgden/pgden/internal/ports"
	"github.com/pgden/pgden/internal/registry"
)

// LaunchFunc starts the engine process for an instance and returns its pid.
type LaunchFunc func(ctx context.Context, installDir string, p platform.Platform, inst *instance.Instance) (int, error)

// ProbeFunc makes a single readiness round trip against a listening engine.
type ProbeFunc func(ctx context.Context, port int, password string) error

// AliveFunc reports whether pid names a live process.
type AliveFunc func(pid int) bool

// SignalFunc delivers a termination request to a process.
type SignalFunc func(pid int) error

// ProvisionFunc creates the instance's application role and database.
type ProvisionFunc func(ctx context.Context, inst *instance.Instance) error

// PrepareFunc readies the instance's data directory against an installation.
type PrepareFunc func(ctx context.Context, inst *instance.Instance, installDir string, p platform.Platform) error

// Config carries tunables and process hooks. Zero durations take defaults;
// nil hooks take the real implementations. Tests swap in fakes.
type Config struct {
	Home string

	HealthInterval time.Duration
	HealthTimeout  time.Duration
	StopTimeout    time.Duration
	StopPoll       time.Duration
	LockWait       time.Duration

	Detector *platform.Detector
	Ports    *ports.Allocator

	Launch    LaunchFunc
	Probe     ProbeFunc
	Alive     AliveFunc
	Terminate SignalFunc
	Kill      SignalFunc
	Provision ProvisionFunc
	Prepare   PrepareFunc
}

// Supervisor coordinates engine processes against the registry.
type Supervisor struct {
	cfg      Config
	registry *registry.Registry
	install  *install.Manager
}

// New returns a Supervisor with defaults filled in for any Config field
// left at its zero value.
func New(reg *registry.Registry, mgr *install.Manager, cfg Config) *Supervisor {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 250 * time.Millisecond
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 30 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.StopPoll <= 0 {
		cfg.StopPoll = 100 * time.Millisecond
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	if cfg.Detector == nil {
		cfg.Detector = platform.NewDetector()
	}
	if cfg.Ports == nil {
		cfg.Ports = &ports.Allocator{}
	}
	if cfg.Launch == nil {
		cfg.Launch = launchPostgres
	}
	if cfg.Probe == nil {
		cfg.Probe = probeSQL
	}
	if cfg.Alive == nil {
		cfg.Alive = processAlive
	}
	if cfg.Terminate == nil {
		cfg.Terminate = terminateProcess
	}
	if cfg.Kill == nil {
		cfg.Kill = killProcess
	}
	if cfg.Provision == nil {
		cfg.Provision = provisionRoles
	}
	if cfg.Prepare == nil {
		cfg.Prepare = prepareDataDir
	}
	return &Supervisor{cfg: cfg, registry: reg, install: mgr}
}

func prepareDataDir(ctx context.Context, inst *instance.Instance, installDir string, p platform.Platform) error {
	return datadir.New(installDir, p).Prepare(ctx, inst)
}

// StartRequest describes one start invocation. The *Explicit flags record
// whether the caller set the field on the command line rather than it
// arriving from defaults; only explicitly requested changes to sticky
// fields produce notices.
type StartRequest struct {
	Name     string
	Port     int
	Version  string
	DataDir  string
	Username string
	Password string
	Database string
	Settings []instance.Setting

	PortExplicit     bool
	VersionExplicit  bool
	DataDirExplicit  bool
	UserExplicit     bool
	PasswordExplicit bool
	DatabaseExplicit bool
}

// StartResult is a successful start: the saved record plus any notices the
// caller should surface, such as a port fallback.
type StartResult struct {
	Instance *instance.Instance
	Notices  []string
}

// Start brings an instance up and records it as running. The record is
// written only after the engine accepts connections, so a failed start
// never leaves a running row behind.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	name, err := instance.CanonicalName(req.Name)
	if err != nil {
		return nil, err
	}

	lock, err := registry.LockInstance(ctx, config.InstanceDir(s.cfg.Home, name), s.cfg.LockWait)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	existing, err := s.registry.Get(ctx, name)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return nil, err
	}

	if existing != nil && existing.Status == instance.StatusRunning {
		if s.cfg.Alive(existing.PID) {
			return nil, instance.NewAlreadyRunning(name, existing.PID)
		}
		// The recorded process is gone; the start below overwrites the
		// stale row on success.
		slog.Warn("stored record says running but the process is gone",
			"instance", name, "pid", existing.PID)
	}

	inst, notices := mergeRequest(req, existing, name)

	plat, err := s.cfg.Detector.Detect()
	if err != nil {
		return nil, err
	}

	if inst.Version == "" {
		inst.Version = install.DefaultVersion
	}
	installDir, err := s.install.Ensure(ctx, inst.Version, plat)
	if err != nil {
		return nil, err
	}

	wantPort := inst.Port
	port, err := s.cfg.Ports.Resolve(wantPort)
	if err != nil {
		return nil, err
	}
	if port != wantPort {
		notices = append(notices, fmt.Sprintf("Port %d is in use, using port %d instead.", wantPort, port))
	}
	inst.Port = port

	if err := s.cfg.Prepare(ctx, inst, installDir, plat); err != nil {
		return nil, err
	}

	slog.Info("starting engine", "instance", name, "port", port, "version", inst.Version)
	pid, err := s.cfg.Launch(ctx, installDir, plat, inst)
	if err != nil {
		return nil, err
	}

	if err := s.waitHealthy(ctx, inst, pid); err != nil {
		return nil, err
	}

	if err := s.cfg.Provision(ctx, inst); err != nil {
		s.cfg.Kill(pid)
		return nil, err
	}

	inst.PID = pid
	inst.Status = instance.StatusRunning
	if err := s.registry.Save(ctx, inst); err != nil {
		// An untracked engine would leak; take it down with the failure.
		s.cfg.Kill(pid)
		return nil, err
	}
	return &StartResult{Instance: inst, Notices: notices}, nil
}

// mergeRequest reconciles a start request with a stored record. Identity
// fields are sticky once the data directory is bootstrapped: changing them
// in the registry would strand the cluster's actual catalog, so the stored
// value wins and the caller gets a notice. Settings are replaced when the
// request carries any.
func mergeRequest(req StartRequest, existing *instance.Instance, name string) (*instance.Instance, []string) {
	if existing == nil {
		return &instance.Instance{
			Name:     name,
			Port:     req.Port,
			Username: req.Username,
			Password: req.Password,
			Database: req.Database,
			DataDir:  req.DataDir,
			Version:  req.Version,
			Settings: req.Settings,
		}, nil
	}

	var notices []string
	note := func(format string, args ...any) {
		notices = append(notices, fmt.Sprintf(format, args...))
	}

	inst := *existing
	if req.PortExplicit {
		inst.Port = req.Port
	}
	if req.UserExplicit && req.Username != existing.Username {
		note("Keeping existing username %q; drop the instance to change it.", existing.Username)
	}
	if req.PasswordExplicit && req.Password != existing.Password {
		note("Keeping existing password; drop the instance to change it.")
	}
	if req.DatabaseExplicit && req.Database != existing.Database {
		note("Keeping existing database %q; drop the instance to change it.", existing.Database)
	}
	if req.DataDirExplicit && req.DataDir != existing.DataDir {
		note("Keeping existing data directory %q; drop the instance to change it.", existing.DataDir)
	}
	if req.VersionExplicit && req.Version != existing.Version {
		note("Keeping existing version %s; drop the instance to change it.", existing.Version)
	}
	if len(req.Settings) > 0 {
		inst.Settings = req.Settings
	}
	return &inst, notices
}

// waitHealthy blocks until the engine accepts an authenticated connection.
// A process that dies or stays unready past HealthTimeout is killed and
// reported as crashed with the tail of its log.
func (s *Supervisor) waitHealthy(ctx context.Context, inst *instance.Instance, pid int) error {
	deadline := time.Now().Add(s.cfg.HealthTimeout)
	for {
		if !s.cfg.Alive(pid) {
			return s.crashError(inst.Name, "engine process exited during startup", inst.DataDir)
		}

		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.cfg.Probe(probeCtx, inst.Port, inst.Password)
		cancel()
		if err == nil {
			return nil
		}

		if time.Now().After(deadline) {
			s.cfg.Kill(pid)
			return s.crashError(inst.Name, "engine did not become ready in time", inst.DataDir)
		}
		select {
		case <-ctx.Done():
			s.cfg.Kill(pid)
			return ctx.Err()
		case <-time.After(s.cfg.HealthInterval):
		}
	}
}

func (s *Supervisor) crashError(name, message, dataDir string) error {
	return instance.NewProcessCrashed(name, message, readLogTail(dataDir))
}

// Stop shuts an instance down and records it as stopped. The returned
// record is the pre-stop snapshot, so callers can report the pid that was
// terminated.
func (s *Supervisor) Stop(ctx context.Context, rawName string) (*instance.Instance, error) {
	name, err := instance.CanonicalName(rawName)
	if err != nil {
		return nil, err
	}

	lock, err := registry.LockInstance(ctx, config.InstanceDir(s.cfg.Home, name), s.cfg.LockWait)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	inst, err := s.registry.Get(ctx, name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, instance.NewNotRunning(name, "instance does not exist")
	}
	if err != nil {
		return nil, err
	}

	if inst.Status != instance.StatusRunning {
		return nil, instance.NewNotRunning(name, "instance is not running")
	}
	if !s.cfg.Alive(inst.PID) {
		// Crashed since the record was written. Converge the stored state;
		// there is nothing left to stop.
		if err := s.registry.SetState(ctx, name, 0, instance.StatusStopped); err != nil {
			return nil, err
		}
		return nil, instance.NewNotRunning(name, "engine process already exited")
	}

	slog.Info("stopping engine", "instance", name, "pid", inst.PID)
	if err := s.shutdown(ctx, inst.PID); err != nil {
		return nil, err
	}
	if err := s.registry.SetState(ctx, name, 0, instance.StatusStopped); err != nil {
		return nil, err
	}
	return inst, nil
}

// shutdown asks the process to exit and escalates to a kill when it does
// not leave within StopTimeout.
func (s *Supervisor) shutdown(ctx context.Context, pid int) error {
	if err := s.cfg.Terminate(pid); err != nil {
		return fmt.Errorf("signal engine process %d: %w", pid, err)
	}
	deadline := time.Now().Add(s.cfg.StopTimeout)
	for time.Now().Before(deadline) {
		if !s.cfg.Alive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.StopPoll):
		}
	}

	slog.Warn("engine ignored the shutdown request, killing it", "pid", pid)
	if err := s.cfg.Kill(pid); err != nil && s.cfg.Alive(pid) {
		return fmt.Errorf("kill engine process %d: %w", pid, err)
	}
	for i := 0; i < 50 && s.cfg.Alive(pid); i++ {
		time.Sleep(s.cfg.StopPoll)
	}
	return nil
}

// DropResult reports what Drop removed. Existed is false when there was
// nothing to remove, which is not an error.
type DropResult struct {
	Existed bool
	DataDir string
}

// Drop stops an instance if needed and removes its data directory and
// registry row. Dropping an unknown instance is a no-op.
func (s *Supervisor) Drop(ctx context.Context, rawName string) (*DropResult, error) {
	name, err := instance.CanonicalName(rawName)
	if err != nil {
		return nil, err
	}
	instDir := config.InstanceDir(s.cfg.Home, name)

	lock, err := registry.LockInstance(ctx, instDir, s.cfg.LockWait)
	if err != nil {
		return nil, err
	}
	res, err := s.dropLocked(ctx, name)
	lock.Release()
	if err != nil {
		return nil, err
	}
	if res.Existed {
		// The shell directory still holds the lock file; remove it after
		// releasing the lock.
		os.RemoveAll(instDir)
	}
	return res, nil
}

func (s *Supervisor) dropLocked(ctx context.Context, name string) (*DropResult, error) {
	inst, err := s.registry.Get(ctx, name)
	if errors.Is(err, registry.ErrNotFound) {
		return &DropResult{Existed: false}, nil
	}
	if err != nil {
		return nil, err
	}

	if inst.Status == instance.StatusRunning && s.cfg.Alive(inst.PID) {
		slog.Info("stopping engine before drop", "instance", name, "pid", inst.PID)
		if err := s.shutdown(ctx, inst.PID); err != nil {
			return nil, err
		}
	}

	if inst.DataDir != "" {
		if err := os.RemoveAll(inst.DataDir); err != nil {
			return nil, fmt.Errorf("remove data directory: %w", err)
		}
	}
	if err := s.registry.Delete(ctx, name); err != nil {
		return nil, err
	}
	return &DropResult{Existed: true, DataDir: inst.DataDir}, nil
}

// Info returns the stored record with its effective status, or nil when
// the instance does not exist.
func (s *Supervisor) Info(ctx context.Context, rawName string) (*instance.Instance, error) {
	name, err := instance.CanonicalName(rawName)
	if err != nil {
		return nil, err
	}
	inst, err := s.registry.Get(ctx, name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.reconcile(inst)
	return inst, nil
}

// List returns every stored record with effective statuses, ordered by
// name.
func (s *Supervisor) List(ctx context.Context) ([]*instance.Instance, error) {
	insts, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, inst := range insts {
		s.reconcile(inst)
	}
	return insts, nil
}

// reconcile derives the effective status of a record. A row claiming a
// running process that no longer exists is reported crashed; nothing is
// written back here.
func (s *Supervisor) reconcile(inst *instance.Instance) {
	if inst.Status == instance.StatusRunning && !s.cfg.Alive(inst.PID) {
		inst.Status = instance.StatusCrashed
	}
}

// PsqlPath returns the psql binary matching an instance's engine version,
// installing the bundle first if needed.
func (s *Supervisor) PsqlPath(ctx context.Context, inst *instance.Instance) (string, error) {
	plat, err := s.cfg.Detector.Detect()
	if err != nil {
		return "", err
	}
	version := inst.Version
	if version == "" {
		version = install.DefaultVersion
	}
	dir, err := s.install.Ensure(ctx, version, plat)
	if err != nil {
		return "", err
	}
	return install.BinPath(dir, "psql", plat), nil
}

// Extensions lists the extension catalog of an engine version, installing
// the bundle first if needed.
func (s *Supervisor) Extensions(ctx context.Context, version string) ([]install.Extension, error) {
	plat, err := s.cfg.Detector.Detect()
	if err != nil {
		return nil, err
	}
	if version == "" {
		version = install.DefaultVersion
	}
	dir, err := s.install.Ensure(ctx, version, plat)
	if err != nil {
		return nil, err
	}
	return install.ListExtensions(dir)
}

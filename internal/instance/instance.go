package instance

import (
	"fmt"
	"strings"
	"time"
)

// Status describes the lifecycle state of an instance.
//
// Only StatusStopped and StatusRunning are ever persisted. StatusCrashed is
// derived at read time when a persisted running instance's process turns out
// to be gone; the registry row is corrected by the next successful start or
// stop transition, never by a read.
type Status string

const (
	// StatusStopped means the instance exists but no engine process is live.
	StatusStopped Status = "stopped"

	// StatusRunning means the engine process passed its readiness probe and
	// has not been observed dead since.
	StatusRunning Status = "running"

	// StatusCrashed means the registry says running but the recorded process
	// is gone. Derived, never persisted.
	StatusCrashed Status = "crashed"
)

// Setting is a single engine configuration override, e.g. shared_buffers=512MB.
// Order is significant: later settings win when a key repeats.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ParseSetting parses a KEY=VALUE engine setting. Keys and values are
// trimmed; the value may be empty, the key may not.
func ParseSetting(s string) (Setting, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return Setting{}, fmt.Errorf("invalid config format %q, expected KEY=VALUE", s)
	}
	return Setting{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)}, nil
}

func (s Setting) String() string {
	return s.Key + "=" + s.Value
}

// Instance is the registry's durable record of a managed database server.
type Instance struct {
	// Name is the canonical (NFC-normalized) instance name, unique across
	// the registry.
	Name string

	// Port is the effective listen port recorded at the last start.
	Port int

	// Username is the application role the connection URI authenticates as.
	// The engine superuser is always "postgres"; a non-default Username is
	// provisioned alongside it with the same password.
	Username string

	// Password authenticates both the superuser and the application role.
	Password string

	// Database is the application database named in the connection URI.
	Database string

	// DataDir is the absolute cluster directory. Exclusive to this instance.
	DataDir string

	// Version is the engine version the instance was bootstrapped with.
	Version string

	// Settings holds engine configuration overrides in the order they were
	// given. They are written after the built-in baseline, so the last
	// occurrence of a key wins.
	Settings []Setting

	// PID is the engine process id while running, 0 otherwise.
	PID int

	// Status is the persisted state (stopped or running) when read straight
	// from the registry, or the effective state (possibly crashed) after
	// liveness reconciliation.
	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Running reports whether the effective status is running.
func (i *Instance) Running() bool {
	return i.Status == StatusRunning
}

// URI returns the connection string for the instance's application database.
func (i *Instance) URI() string {
	return fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s", i.Username, i.Password, i.Port, i.Database)
}

// Info is the stable JSON output shape for a single instance. Absent fields
// are omitted rather than emitted as null.
type Info struct {
	Name     string `json:"name"`
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	Port     int    `json:"port,omitempty"`
	Version  string `json:"version,omitempty"`
	Username string `json:"username,omitempty"`
	Database string `json:"database,omitempty"`
	DataDir  string `json:"data_dir,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// BuildInfo assembles the output shape for an instance. A nil instance yields
// the not-found shape: just the name with running=false. The pid and the
// connection URI are present only while the instance is running.
func BuildInfo(name string, inst *Instance) Info {
	if inst == nil {
		return Info{Name: name}
	}
	info := Info{
		Name:     inst.Name,
		Running:  inst.Running(),
		Port:     inst.Port,
		Version:  inst.Version,
		Username: inst.Username,
		Database: inst.Database,
		DataDir:  inst.DataDir,
	}
	if info.Running {
		info.PID = inst.PID
		info.URI = inst.URI()
	}
	return info
}

// Package config resolves the application home directory, the on-disk
// layout beneath it, and the layered start defaults: built-in values
// overlaid by the optional config.yaml in the home directory. Explicit
// command-line flags sit above both layers and are applied by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pgden/pgden/internal/instance"
)

// EnvHome overrides the default ~/.pgden base directory.
const EnvHome = "PGDEN_HOME"

// Built-in start defaults, the bottom layer of flag > file > built-in.
const (
	DefaultName     = "default"
	DefaultPort     = 5432
	DefaultUsername = "postgres"
	DefaultPassword = "postgres"
	DefaultDatabase = "postgres"
)

// Home returns the application base directory: $PGDEN_HOME when set,
// otherwise ~/.pgden.
func Home() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".pgden"), nil
}

// RegistryPath returns the path of the instance registry database.
func RegistryPath(home string) string {
	return filepath.Join(home, "registry.db")
}

// InstancesDir returns the root under which per-instance directories live.
func InstancesDir(home string) string {
	return filepath.Join(home, "instances")
}

// InstanceDir returns the directory owned by a single named instance. It
// holds the advisory lock file and, by default, the data directory.
func InstanceDir(home, name string) string {
	return filepath.Join(InstancesDir(home), name)
}

// DataDir returns the default cluster directory for an instance.
func DataDir(home, name string) string {
	return filepath.Join(InstanceDir(home, name), "data")
}

// InstallRoot returns the root under which engine installations live.
func InstallRoot(home string) string {
	return filepath.Join(home, "installation")
}

// InstallDir returns the installation directory for one engine version on
// one platform.
func InstallDir(home, version, tag string) string {
	return filepath.Join(InstallRoot(home), version, tag)
}

// DefaultsPath returns the path of the optional user defaults file.
func DefaultsPath(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Defaults are the start parameters applied when flags don't say otherwise.
type Defaults struct {
	Name     string   `yaml:"name"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Database string   `yaml:"database"`
	Version  string   `yaml:"version"`
	Settings []string `yaml:"config"`
}

// Builtin returns the bottom defaults layer. Version is left empty; the
// bundled engine version is the final fallback and belongs to the caller.
func Builtin() Defaults {
	return Defaults{
		Name:     DefaultName,
		Port:     DefaultPort,
		Username: DefaultUsername,
		Password: DefaultPassword,
		Database: DefaultDatabase,
	}
}

// Load returns the built-in defaults overlaid with the user defaults file,
// when one exists. A missing file is not an error; a malformed one is.
func Load(home string) (Defaults, error) {
	d := Builtin()

	path := DefaultsPath(home)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("read defaults file: %w", err)
	}

	var file Defaults
	if err := yaml.Unmarshal(data, &file); err != nil {
		return d, fmt.Errorf("parse %s: %w", path, err)
	}

	if file.Name != "" {
		d.Name = file.Name
	}
	if file.Port != 0 {
		d.Port = file.Port
	}
	if file.Username != "" {
		d.Username = file.Username
	}
	if file.Password != "" {
		d.Password = file.Password
	}
	if file.Database != "" {
		d.Database = file.Database
	}
	if file.Version != "" {
		d.Version = file.Version
	}
	d.Settings = file.Settings
	return d, nil
}

// ParsedSettings parses the defaults file's config entries. Unlike ad-hoc
// -c flags, a malformed entry in the durable defaults file is an error.
func (d Defaults) ParsedSettings() ([]instance.Setting, error) {
	settings := make([]instance.Setting, 0, len(d.Settings))
	for _, raw := range d.Settings {
		s, err := instance.ParseSetting(raw)
		if err != nil {
			return nil, fmt.Errorf("defaults file: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, nil
}

// ExpandPath expands a leading ~ to the user's home directory and returns
// an absolute path, suitable for storing in the registry.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}

// Package install materializes embedded engine bundles on disk, once per
// (version, platform). Extraction stages into a temp directory next to the
// final location and commits with a single atomic rename, so a crashed or
// concurrent first run can never leave a half-usable installation behind.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/pgden/pgden/internal/config"
	"github.com/pgden/pgden/internal/instance"
	"github.com/pgden/pgden/internal/platform"
	"github.com/pgden/pgden/internal/registry"
)

// DefaultVersion is the engine version bundled into release builds.
// Overridden at build time:
//
//	go build -tags pgbundle \
//	  -ldflags "-X github.com/pgden/pgden/internal/install.DefaultVersion=18.1.0"
var DefaultVersion = "18.1.0"

// markerFile is written inside a committed installation directory. Its
// presence is the fast-path signal that extraction and verification already
// happened.
const markerFile = ".pgden-verified"

var versionRe = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

// Source supplies engine bundles as gzipped tarballs whose first path
// component is the archive root (postgresql-<version>-<tag>).
type Source interface {
	Open(version string, p platform.Platform) (io.ReadCloser, error)
}

// Manager ensures engine installations exist under the application home.
type Manager struct {
	Home   string
	Source Source

	// Registry, when set, records verified installations.
	Registry *registry.Registry
}

// New returns a Manager serving bundles compiled into this binary.
func New(home string, reg *registry.Registry) *Manager {
	return &Manager{Home: home, Source: BundleSource{}, Registry: reg}
}

// Ensure returns the installation directory for the given engine version on
// the given platform, extracting and verifying the bundle on first use.
// Subsequent calls are a single stat.
func (m *Manager) Ensure(ctx context.Context, version string, p platform.Platform) (string, error) {
	tag := p.Tag()
	if !versionRe.MatchString(version) {
		return "", instance.NewInstallationFailed(version, tag, fmt.Sprintf("invalid engine version %q", version), nil)
	}

	dir := config.InstallDir(m.Home, version, tag)
	if _, err := os.Stat(filepath.Join(dir, markerFile)); err == nil {
		return dir, nil
	}

	slog.Info("extracting engine bundle", "version", version, "platform", tag)

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", instance.NewInstallationFailed(version, tag, "create installation root", err)
	}

	tmp := filepath.Join(parent, ".tmp-"+uuid.NewString())
	defer os.RemoveAll(tmp)

	rc, err := m.Source.Open(version, p)
	if err != nil {
		return "", instance.NewInstallationFailed(version, tag, "open engine bundle", err)
	}
	defer rc.Close()

	if err := extractArchive(rc, tmp); err != nil {
		return "", instance.NewInstallationFailed(version, tag, "extract engine bundle", err)
	}

	if err := verifyTree(tmp, p); err != nil {
		return "", instance.NewInstallationFailed(version, tag, "incomplete engine bundle", err)
	}

	// The marker is written into the staging dir so the rename below is the
	// single commit point: a committed directory always carries it.
	if err := os.WriteFile(filepath.Join(tmp, markerFile), []byte(version+" "+tag+"\n"), 0o644); err != nil {
		return "", instance.NewInstallationFailed(version, tag, "write verification marker", err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		// A concurrent first run may have committed first; its tree is as
		// good as ours.
		if _, statErr := os.Stat(filepath.Join(dir, markerFile)); statErr == nil {
			return dir, m.record(ctx, version, tag, dir)
		}
		return "", instance.NewInstallationFailed(version, tag, "commit installation", err)
	}

	slog.Info("engine installed", "version", version, "dir", dir)
	return dir, m.record(ctx, version, tag, dir)
}

func (m *Manager) record(ctx context.Context, version, tag, dir string) error {
	if m.Registry == nil {
		return nil
	}
	return m.Registry.PutInstallation(ctx, version, tag, dir)
}

// verifyTree checks that an extracted tree has what a usable installation
// needs: the engine and its control binaries, shared libraries, and the
// share tree carrying extension metadata.
func verifyTree(dir string, p platform.Platform) error {
	exe := p.ExeSuffix()
	for _, rel := range []string{
		filepath.Join("bin", "postgres"+exe),
		filepath.Join("bin", "initdb"+exe),
		filepath.Join("bin", "psql"+exe),
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			return fmt.Errorf("missing %s: %w", rel, err)
		}
	}
	for _, sub := range []string{"lib", "share"} {
		entries, err := os.ReadDir(filepath.Join(dir, sub))
		if err != nil {
			return fmt.Errorf("missing %s directory: %w", sub, err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("%s directory is empty", sub)
		}
	}
	if !hasControlFiles(dir) {
		return errors.New("no extension control files under share")
	}
	return nil
}

func hasControlFiles(dir string) bool {
	for _, rel := range []string{
		filepath.Join("share", "extension"),
		filepath.Join("share", "postgresql", "extension"),
	} {
		matches, err := filepath.Glob(filepath.Join(dir, rel, "*.control"))
		if err == nil && len(matches) > 0 {
			return true
		}
	}
	return false
}

// BinPath returns the path of a named engine binary inside an installation.
func BinPath(installDir, name string, p platform.Platform) string {
	return filepath.Join(installDir, "bin", name+p.ExeSuffix())
}

// Package platform resolves which embedded engine build the host machine can
// run. The result is a build tag such as x86_64-unknown-linux-gnu that names
// the bundled archive and the on-disk installation directory.
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/pgden/pgden/internal/instance"
)

// Prebuilt gnu engine binaries link against glibc. Hosts below this version
// get the statically linked musl build instead.
const (
	minGlibcMajor = 2
	minGlibcMinor = 17
)

// Platform identifies a supported engine build target.
type Platform struct {
	OS   string // darwin, linux, windows
	Arch string // amd64, arm64
	Libc string // gnu or musl on linux, empty elsewhere
}

// Tag returns the engine build tag for the platform.
func (p Platform) Tag() string {
	arch := archName(p.Arch)
	switch p.OS {
	case "darwin":
		return arch + "-apple-darwin"
	case "linux":
		return arch + "-unknown-linux-" + p.Libc
	case "windows":
		return arch + "-pc-windows-msvc"
	}
	return ""
}

// ExeSuffix returns the executable filename suffix for the platform.
func (p Platform) ExeSuffix() string {
	if p.OS == "windows" {
		return ".exe"
	}
	return ""
}

func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	}
	return goarch
}

// Detector resolves the host platform. The probe functions are replaceable
// for tests; the mapping itself has no side effects.
type Detector struct {
	GOOS   string
	GOARCH string

	// MuslLoader reports whether the musl dynamic loader is present on the
	// host. Only consulted on linux.
	MuslLoader func(goarch string) bool

	// GlibcVersion reports the host glibc version. ok is false when the
	// version cannot be determined. Only consulted on linux.
	GlibcVersion func() (major, minor int, ok bool)
}

// NewDetector returns a Detector wired to the running process and host.
func NewDetector() *Detector {
	return &Detector{
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		MuslLoader:   muslLoaderPresent,
		GlibcVersion: glibcVersion,
	}
}

// Detect maps the host to a supported Platform. Combinations with no engine
// build fail with a PLATFORM_UNSUPPORTED error.
func (d *Detector) Detect() (Platform, error) {
	switch d.GOOS {
	case "darwin":
		if d.GOARCH == "amd64" || d.GOARCH == "arm64" {
			return Platform{OS: "darwin", Arch: d.GOARCH}, nil
		}
	case "windows":
		if d.GOARCH == "amd64" {
			return Platform{OS: "windows", Arch: d.GOARCH}, nil
		}
	case "linux":
		if d.GOARCH == "amd64" || d.GOARCH == "arm64" {
			return Platform{OS: "linux", Arch: d.GOARCH, Libc: d.detectLibc()}, nil
		}
	}
	return Platform{}, instance.NewPlatformUnsupported(d.GOOS, d.GOARCH)
}

// detectLibc picks the C runtime variant for a linux host. A musl loader
// wins outright; a modern-enough glibc selects the gnu build; anything
// ambiguous or too old falls back to the statically linked musl build,
// which runs on either runtime.
func (d *Detector) detectLibc() string {
	if d.MuslLoader != nil && d.MuslLoader(d.GOARCH) {
		return "musl"
	}
	if d.GlibcVersion != nil {
		if major, minor, ok := d.GlibcVersion(); ok {
			if major > minGlibcMajor || (major == minGlibcMajor && minor >= minGlibcMinor) {
				return "gnu"
			}
		}
	}
	return "musl"
}

func muslLoaderPresent(goarch string) bool {
	loader := "/lib/ld-musl-" + archName(goarch) + ".so.1"
	_, err := os.Stat(loader)
	return err == nil
}

// glibcVersion asks the host's getconf for GNU_LIBC_VERSION, which prints
// a line like "glibc 2.35".
func glibcVersion() (int, int, bool) {
	out, err := exec.Command("getconf", "GNU_LIBC_VERSION").Output()
	if err != nil {
		return 0, 0, false
	}
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return 0, 0, false
	}
	var major, minor int
	if _, err := fmt.Sscanf(fields[1], "%d.%d", &major, &minor); err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgden/pgden/internal/instance"
)

func noMusl(string) bool  { return false }
func hasMusl(string) bool { return true }

func glibc(maj, min int) func() (int, int, bool) {
	return func() (int, int, bool) { return maj, min, true }
}

func glibcUnknown() (int, int, bool) { return 0, 0, false }

func TestDetectTags(t *testing.T) {
	tests := []struct {
		name string
		d    Detector
		tag  string
	}{
		{
			name: "darwin arm64",
			d:    Detector{GOOS: "darwin", GOARCH: "arm64"},
			tag:  "aarch64-apple-darwin",
		},
		{
			name: "darwin amd64",
			d:    Detector{GOOS: "darwin", GOARCH: "amd64"},
			tag:  "x86_64-apple-darwin",
		},
		{
			name: "linux amd64 modern glibc",
			d:    Detector{GOOS: "linux", GOARCH: "amd64", MuslLoader: noMusl, GlibcVersion: glibc(2, 35)},
			tag:  "x86_64-unknown-linux-gnu",
		},
		{
			name: "linux arm64 modern glibc",
			d:    Detector{GOOS: "linux", GOARCH: "arm64", MuslLoader: noMusl, GlibcVersion: glibc(2, 17)},
			tag:  "aarch64-unknown-linux-gnu",
		},
		{
			name: "linux amd64 musl loader",
			d:    Detector{GOOS: "linux", GOARCH: "amd64", MuslLoader: hasMusl, GlibcVersion: glibc(2, 35)},
			tag:  "x86_64-unknown-linux-musl",
		},
		{
			name: "linux amd64 old glibc falls back to musl",
			d:    Detector{GOOS: "linux", GOARCH: "amd64", MuslLoader: noMusl, GlibcVersion: glibc(2, 12)},
			tag:  "x86_64-unknown-linux-musl",
		},
		{
			name: "linux amd64 unknown libc falls back to musl",
			d:    Detector{GOOS: "linux", GOARCH: "amd64", MuslLoader: noMusl, GlibcVersion: glibcUnknown},
			tag:  "x86_64-unknown-linux-musl",
		},
		{
			name: "windows amd64",
			d:    Detector{GOOS: "windows", GOARCH: "amd64"},
			tag:  "x86_64-pc-windows-msvc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.d.Detect()
			require.NoError(t, err)
			assert.Equal(t, tt.tag, p.Tag())
		})
	}
}

func TestDetectUnsupported(t *testing.T) {
	for _, d := range []Detector{
		{GOOS: "plan9", GOARCH: "amd64"},
		{GOOS: "windows", GOARCH: "arm64"},
		{GOOS: "linux", GOARCH: "riscv64"},
		{GOOS: "darwin", GOARCH: "386"},
	} {
		_, err := d.Detect()
		require.Error(t, err)
		assert.True(t, instance.HasKind(err, instance.KindPlatformUnsupported), "detector %+v", d)
	}
}

func TestDetectPure(t *testing.T) {
	// Same inputs, same answer; Detect must not depend on call order or
	// prior results.
	d := Detector{GOOS: "linux", GOARCH: "amd64", MuslLoader: noMusl, GlibcVersion: glibc(2, 28)}
	first, err := d.Detect()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		p, err := d.Detect()
		require.NoError(t, err)
		assert.Equal(t, first, p)
	}
}

func TestExeSuffix(t *testing.T) {
	assert.Equal(t, ".exe", Platform{OS: "windows", Arch: "amd64"}.ExeSuffix())
	assert.Equal(t, "", Platform{OS: "linux", Arch: "amd64", Libc: "gnu"}.ExeSuffix())
}

func TestNewDetectorUsesRuntime(t *testing.T) {
	d := NewDetector()
	assert.NotEmpty(t, d.GOOS)
	assert.NotEmpty(t, d.GOARCH)
	require.NotNil(t, d.MuslLoader)
	require.NotNil(t, d.GlibcVersion)
}

package install

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStripsRootComponent(t *testing.T) {
	data := buildArchive(t, "postgresql-18.1.0-aarch64-apple-darwin", []archiveEntry{
		{name: "bin", dir: true},
		{name: "bin/postgres", body: "engine"},
		{name: "share/extension/plpgsql.control", body: "comment = 'x'\n"},
	})
	dest := t.TempDir()

	require.NoError(t, extractArchive(bytes.NewReader(data), dest))

	body, err := os.ReadFile(filepath.Join(dest, "bin", "postgres"))
	require.NoError(t, err)
	assert.Equal(t, "engine", string(body))

	_, err = os.Stat(filepath.Join(dest, "share", "extension", "plpgsql.control"))
	assert.NoError(t, err)

	// The root component itself must not appear under dest.
	_, err = os.Stat(filepath.Join(dest, "postgresql-18.1.0-aarch64-apple-darwin"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	data := buildArchive(t, "root", []archiveEntry{
		{name: "../../evil", body: "nope"},
	})
	dest := t.TempDir()

	err := extractArchive(bytes.NewReader(data), dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestExtractMarksBinariesExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	data := buildArchive(t, "root", []archiveEntry{
		{name: "bin/initdb", body: "x", mode: 0o644},
		{name: "lib/libpq.so.5", body: "y", mode: 0o644},
		{name: "share/plain.txt", body: "z", mode: 0o644},
	})
	dest := t.TempDir()

	require.NoError(t, extractArchive(bytes.NewReader(data), dest))

	for _, rel := range []string{"bin/initdb", "lib/libpq.so.5"} {
		info, err := os.Stat(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&0o111, rel)
	}

	info, err := os.Stat(filepath.Join(dest, "share", "plain.txt"))
	require.NoError(t, err)
	assert.Zero(t, info.Mode()&0o111, "share files keep their archive mode")
}

func TestExtractRejectsGarbage(t *testing.T) {
	err := extractArchive(bytes.NewReader([]byte("plainly not gzip")), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func TestStripRoot(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "regular entry", in: "root/bin/postgres", want: filepath.FromSlash("bin/postgres"), ok: true},
		{name: "dot slash prefix", in: "./root/lib/x.so", want: filepath.FromSlash("lib/x.so"), ok: true},
		{name: "root dir itself", in: "root/", ok: false},
		{name: "bare root", in: "root", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stripRoot(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

package supervisor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgden/pgden/internal/datadir"
)

func writeLog(t *testing.T, dataDir, name, content string, mtime time.Time) string {
	t.Helper()
	dir := datadir.LogDir(dataDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestLogPathPicksNewestFile(t *testing.T) {
	dataDir := t.TempDir()
	now := time.Now()
	writeLog(t, dataDir, "postgresql-old.log", "old", now.Add(-time.Hour))
	newest := writeLog(t, dataDir, "postgresql-new.log", "new", now)

	got, err := LogPath(dataDir)
	require.NoError(t, err)
	assert.Equal(t, newest, got)
}

func TestLogPathWithoutLogs(t *testing.T) {
	_, err := LogPath(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no logs")
}

func TestTailLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o644))

	lines, err := TailLines(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, lines)

	all, err := TailLines(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four"}, all)

	_, err = TailLines(filepath.Join(t.TempDir(), "missing.log"), 5)
	require.Error(t, err)
}

type safeBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestFollowStreamsAppendedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("one\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf safeBuffer
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, &buf, path, time.Millisecond) }()

	require.Eventually(t, func() bool {
		return buf.String() == "one\n"
	}, time.Second, time.Millisecond, "existing content printed first")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return buf.String() == "one\ntwo\n"
	}, time.Second, time.Millisecond, "appended content streamed")

	cancel()
	require.NoError(t, <-done)
}

func TestFollowHandlesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(path, []byte("stale content\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf safeBuffer
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, &buf, path, time.Millisecond) }()

	require.Eventually(t, func() bool {
		return buf.String() == "stale content\n"
	}, time.Second, time.Millisecond)

	// Rotation truncates the file; the follower resets and picks up new
	// writes from the new end.
	require.NoError(t, os.Truncate(path, 0))
	time.Sleep(10 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("fresh\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return buf.String() == "stale content\nfresh\n"
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

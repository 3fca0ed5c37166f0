package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pgden/pgden/internal/datadir"
)

// DefaultFollowPoll is how often Follow checks a log file for growth.
const DefaultFollowPoll = 100 * time.Millisecond

// LogPath returns the most recently written engine log file for a data
// directory. The logging collector rotates files, so newest wins.
func LogPath(dataDir string) (string, error) {
	dir := datadir.LogDir(dataDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("no logs for this instance yet")
	}

	var newest string
	var newestAt time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest = e.Name()
			newestAt = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no logs for this instance yet")
	}
	return filepath.Join(dir, newest), nil
}

// TailLines returns the last n lines of a file, or every line when n <= 0.
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Follow streams a file to w: current content first, then appended data as
// it arrives, until ctx is canceled. Truncation resets the read position to
// the new end of the file.
func Follow(ctx context.Context, w io.Writer, path string, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultFollowPoll
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	offset, err := io.Copy(w, f)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		size := info.Size()
		if size < offset {
			offset = size
		}
		if size == offset {
			continue
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		n, err := io.Copy(w, f)
		if err != nil {
			return err
		}
		offset += n
	}
}

// readLogTail collects the last lines of the newest engine log for crash
// diagnostics. Best effort: no log yields an empty tail.
func readLogTail(dataDir string) string {
	path, err := LogPath(dataDir)
	if err != nil {
		return ""
	}
	lines, err := TailLines(path, 20)
	if err != nil {
		return ""
	}
	return strings.Join(lines, "\n")
}

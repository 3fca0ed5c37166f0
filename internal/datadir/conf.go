package datadir

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pgden/pgden/internal/instance"
)

// Marker lines delimiting the configuration block this tool owns inside
// postgresql.conf. Everything outside the block belongs to the user.
const (
	managedBegin = "# >>> pgden managed"
	managedEnd   = "# <<< pgden managed"
)

// baseline is tuned for local development workloads. Instance settings are
// written after it, and in postgresql.conf the last occurrence of a key
// wins.
var baseline = []instance.Setting{
	{Key: "shared_buffers", Value: "256MB"},
	{Key: "maintenance_work_mem", Value: "512MB"},
	{Key: "effective_cache_size", Value: "1GB"},
	{Key: "max_parallel_maintenance_workers", Value: "4"},
	{Key: "work_mem", Value: "64MB"},
}

// WriteManagedConfig rewrites the managed block at the tail of the
// instance's postgresql.conf: networking, logging, the tuning baseline, and
// finally the instance's own settings. The rest of the file is preserved,
// so manual edits outside the block survive restarts.
func WriteManagedConfig(inst *instance.Instance) error {
	path := filepath.Join(inst.DataDir, "postgresql.conf")
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return instance.NewDataDirCorrupt(inst.DataDir, "read postgresql.conf", err)
	}

	var b bytes.Buffer
	b.Write(stripManagedBlock(existing))
	if b.Len() > 0 && !bytes.HasSuffix(b.Bytes(), []byte("\n")) {
		b.WriteByte('\n')
	}

	b.WriteString(managedBegin + "\n")
	b.WriteString("# Rewritten on every start. Do not edit inside this block.\n")
	writeConfLine(&b, "port", strconv.Itoa(inst.Port))
	writeConfLine(&b, "listen_addresses", "127.0.0.1")
	writeConfLine(&b, "logging_collector", "on")
	writeConfLine(&b, "log_directory", "log")
	for _, s := range baseline {
		writeConfLine(&b, s.Key, s.Value)
	}
	for _, s := range inst.Settings {
		writeConfLine(&b, s.Key, s.Value)
	}
	b.WriteString(managedEnd + "\n")

	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		return instance.NewDataDirCorrupt(inst.DataDir, "write postgresql.conf", err)
	}
	return nil
}

// stripManagedBlock removes a previous managed block, keeping everything
// before and after it. A block with a missing end marker is cut to the end
// of the file.
func stripManagedBlock(conf []byte) []byte {
	begin := bytes.Index(conf, []byte(managedBegin))
	if begin == -1 {
		return conf
	}
	tail := conf[begin:]
	end := bytes.Index(tail, []byte(managedEnd))
	if end == -1 {
		return conf[:begin]
	}
	rest := tail[end+len(managedEnd):]
	rest = bytes.TrimPrefix(rest, []byte("\n"))
	out := append([]byte(nil), conf[:begin]...)
	return append(out, rest...)
}

func writeConfLine(b *bytes.Buffer, key, value string) {
	fmt.Fprintf(b, "%s = %s\n", key, quoteConfValue(value))
}

// quoteConfValue renders a postgresql.conf value. Bare numbers, keywords
// and unit-suffixed sizes pass through; anything else becomes a quoted
// string with embedded quotes doubled.
func quoteConfValue(v string) string {
	if v != "" && !strings.ContainsFunc(v, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_')
	}) {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

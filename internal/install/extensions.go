package install

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extension describes one engine extension available to instances, parsed
// from its .control metadata file.
type Extension struct {
	Name    string `json:"name"`
	Version string `json:"default_version,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// ListExtensions reads the extension control files of an installation,
// sorted by name. Both share/extension and share/postgresql/extension
// layouts are probed.
func ListExtensions(installDir string) ([]Extension, error) {
	for _, rel := range []string{
		filepath.Join("share", "extension"),
		filepath.Join("share", "postgresql", "extension"),
	} {
		dir := filepath.Join(installDir, rel)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		exts := make([]Extension, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".control") {
				continue
			}
			ext, err := parseControlFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			exts = append(exts, ext)
		}
		sort.Slice(exts, func(i, j int) bool { return exts[i].Name < exts[j].Name })
		return exts, nil
	}
	return nil, fmt.Errorf("no extension directory under %s", installDir)
}

// parseControlFile reads the `key = 'value'` lines of an extension control
// file. Unknown keys are ignored.
func parseControlFile(path string) (Extension, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Extension{}, fmt.Errorf("read control file: %w", err)
	}
	ext := Extension{Name: strings.TrimSuffix(filepath.Base(path), ".control")}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "'")
		switch strings.TrimSpace(key) {
		case "default_version":
			ext.Version = value
		case "comment":
			ext.Comment = value
		}
	}
	return ext, nil
}

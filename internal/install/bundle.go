//go:build pgbundle

package install

import (
	"embed"
	"fmt"
	"io"

	"github.com/pgden/pgden/internal/platform"
)

// Release builds place engine archives named
// postgresql-<version>-<platform>.tar.gz under bundle/ before building with
// -tags pgbundle.
//
//go:embed bundle
var bundleFS embed.FS

// BundleSource serves the engine archives compiled into this binary.
type BundleSource struct{}

func (BundleSource) Open(version string, p platform.Platform) (io.ReadCloser, error) {
	name := fmt.Sprintf("bundle/postgresql-%s-%s.tar.gz", version, p.Tag())
	f, err := bundleFS.Open(name)
	if err != nil {
		return nil, fmt.Errorf("no bundled engine %s for %s: %w", version, p.Tag(), err)
	}
	return f, nil
}

//go:build !pgbundle

package install

import (
	"errors"
	"io"

	"github.com/pgden/pgden/internal/platform"
)

// BundleSource is a placeholder in builds without embedded engine archives.
type BundleSource struct{}

func (BundleSource) Open(version string, p platform.Platform) (io.ReadCloser, error) {
	return nil, errors.New("this binary was built without an embedded engine bundle (rebuild with -tags pgbundle)")
}

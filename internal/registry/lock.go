package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/pgden/pgden/internal/instance"
)

// lockRetryDelay is how often lock acquisition re-attempts within its wait
// budget.
const lockRetryDelay = 100 * time.Millisecond

// InstanceLock is an exclusive advisory file lock on one instance
// directory. Holding it serializes start/stop/drop for that instance across
// processes; other instances are unaffected.
type InstanceLock struct {
	fl *flock.Flock
}

// LockInstance acquires the advisory lock for the instance directory,
// creating the directory if needed. Acquisition retries until the wait
// budget is exhausted, then fails with REGISTRY_LOCKED.
func LockInstance(ctx context.Context, dir string, wait time.Duration) (*InstanceLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create instance dir: %w", err)
	}

	fl := flock.New(filepath.Join(dir, ".lock"))

	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		name := filepath.Base(dir)
		return nil, instance.NewRegistryLocked(name, "another operation holds the instance lock", err)
	}
	return &InstanceLock{fl: fl}, nil
}

// Release drops the lock. Safe to call once after a successful LockInstance.
func (l *InstanceLock) Release() error {
	return l.fl.Unlock()
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.fl.Path()
}

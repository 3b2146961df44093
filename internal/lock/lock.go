// Package lock guards a working copy against concurrent local runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const retryDelay = 100 * time.Millisecond

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("working copy is locked by another process")

// Path returns the lock file used for the working copy at dir.
func Path(dir string) string {
	return filepath.Clean(dir) + ".lock"
}

// Acquire takes an exclusive lock next to dir, retrying until timeout.
// The caller must Unlock the returned lock.
func Acquire(ctx context.Context, dir string, timeout time.Duration) (*flock.Flock, error) {
	lockPath := Path(dir)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrHeld, lockPath)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrHeld, lockPath)
	}
	return lock, nil
}

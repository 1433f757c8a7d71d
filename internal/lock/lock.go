// Package lock provides the single-writer coordination lock over shared
// trace artifacts. The lock is advisory: only processes that intend to be
// the writer for a resource scope request it.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrHeld reports that another process already holds the lock. Callers
// treat this as fatal and abort startup with a distinct exit status.
var ErrHeld = errors.New("lock already held by another process")

// FileLock is an exclusive, non-blocking flock over a lock file.
type FileLock struct {
	path string
	file *os.File
}

// Acquire takes the lock immediately or fails with ErrHeld. It never waits.
func Acquire(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrHeld)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	// Best-effort marker for humans inspecting the lock file.
	_, _ = fmt.Fprintf(f, "monitor-writer pid=%d\n", os.Getpid())
	return &FileLock{path: path, file: f}, nil
}

// Release drops the lock. It is idempotent and always succeeds on a lock
// that was already released.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	cerr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return cerr
}

package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	cerrors "github.com/Aman-CERP/coderag/internal/errors"
)

// LockFileName is created inside the data directory while an index build runs.
const LockFileName = ".index.lock"

// Lock is a cross-process exclusive lock on a data directory. Two index
// builds against the same directory would interleave writes to the corpus
// and the vector file.
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewLock returns an unlocked Lock for dataDir.
func NewLock(dataDir string) *Lock {
	path := filepath.Join(dataDir, LockFileName)
	return &Lock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. It returns an
// ERR_202_INDEX_LOCKED error when another process holds it.
func (l *Lock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return cerrors.New(cerrors.ErrCodeIndexLocked, "another index build is running", nil).
			WithDetail("lock", l.path).
			WithSuggestion("wait for the other build to finish, or remove the lock file if no build is running")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked Lock is a no-op.
func (l *Lock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// IsLocked reports whether this Lock currently holds the lock.
func (l *Lock) IsLocked() bool { return l.locked }

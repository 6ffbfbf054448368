// Package lock keeps a second server process off the same content root.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	kberrors "github.com/Aman-CERP/kbpulse/internal/errors"
)

// FileLock provides cross-process file locking using gofrs/flock.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// ForRoot creates a lock in dir that is private to one content root, so
// servers for different roots can run side by side. The file is
// kbpulse-<hash>.lock, hashed from the absolute root path. Nothing is
// touched on disk until Lock or TryLock.
func ForRoot(dir, root string) *FileLock {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	path := filepath.Join(dir, "kbpulse-"+hex.EncodeToString(sum[:6])+".lock")
	return &FileLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the lock is held.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock acquires the lock without blocking. It reports false when
// another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Acquire is TryLock that turns contention into ERR_205_INSTANCE_LOCKED.
func (l *FileLock) Acquire() error {
	ok, err := l.TryLock()
	if err != nil {
		return kberrors.Wrap(kberrors.ErrCodeInternal, err).WithDetail("path", l.path)
	}
	if !ok {
		return kberrors.New(kberrors.ErrCodeInstanceLocked, "another kbpulse server is running", nil).
			WithDetail("path", l.path).
			WithSuggestion("Stop the other server for this content root")
	}
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *FileLock) Unlock() error {
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
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this handle holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }

package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"timelapse/internal/config"
)

// ErrAlreadyRunning is returned when another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another timelapse instance is already running")

// AcquireLock takes the single-instance lock without blocking. Callers that
// touch the overflow directory outside the daemon (manual drain) use it too.
func AcquireLock(cfg *config.Config) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LockPath()), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return lock, nil
}

// Locked reports whether some process currently holds the instance lock.
func Locked(cfg *config.Config) (bool, error) {
	lock, err := AcquireLock(cfg)
	if errors.Is(err, ErrAlreadyRunning) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, lock.Unlock()
}

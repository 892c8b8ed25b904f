package tasks

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/vqa/internal/shared"
	"github.com/gofrs/flock"
)

// Lock is held by the process that runs the poll loop against a store.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the poller lock next to the store at storePath without waiting.
// Returns [shared.ErrLocked] when another process holds it.
func AcquireLock(storePath string) (*Lock, error) {
	path := storePath + ".poller.lock"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire poller lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrLocked, path)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

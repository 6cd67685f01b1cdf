// Package runlock keeps two batch runs from sharing one output tree.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld indicates another run already owns the output tree.
var ErrHeld = errors.New("another transcription run is already active for this output path")

// Lock is an advisory file lock scoped to an output directory.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock for the given output directory without
// blocking. The caller must Release it.
func Acquire(outputDir string) (*Lock, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}

	fl := flock.New(filepath.Join(outputDir, ".transcriber.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call once.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

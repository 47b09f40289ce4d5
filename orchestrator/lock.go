package orchestrator

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Reported when another lifecycle operation holds the advisory lock.
// Lifecycle operations are operator-driven and infrequent, so contention
// fails fast instead of queuing.
var ErrAlreadyInProgress = errors.New("another hotspot lifecycle operation is in progress")

// Advisory flock over a well-known path, serializing start/stop/restart
// system-wide. The lock dies with the process, so a crashed invocation
// never wedges the next one.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// Acquires the lock without blocking. Contention maps to
// ErrAlreadyInProgress. The lock directory is created on demand: on a
// fresh system the first lifecycle operation runs before anything else
// has materialized the runtime directory.
func (l *fileLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrapf(err, "cannot create lock directory %s", filepath.Dir(l.path))
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrapf(err, "cannot open lock file %s", l.path)
	}
	err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrAlreadyInProgress
		}
		return errors.Wrapf(err, "cannot lock %s", l.path)
	}
	l.file = file
	return nil
}

// Releases the lock. Safe to call when the lock was never acquired.
func (l *fileLock) release() {
	if l.file == nil {
		return
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
}

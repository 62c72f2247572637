// Package lockfile implements the filesystem-based coordination primitives
// described in spec §3/§4.3: per-slot exclusive advisory locks and
// per-host backoff timefiles. There is no shared mutable in-process state
// here by design (spec §5) -- every client process independently races to
// acquire the same lock files.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrBusy is returned by TryAcquire when another process already holds
// the slot (distinct from ErrIO, per spec §4.3/§7).
var ErrBusy = errors.New("lockfile: slot busy")

// SlotLock is an OS advisory write-lock on a file under the per-user lock
// directory, named to encode (purpose, host, slot). Existence of the file
// is not meaningful -- only the held lock is (spec §3).
type SlotLock struct {
	path string
	file *os.File
}

// Path returns the filesystem path backing this lock, for logging.
func (l *SlotLock) Path() string { return l.path }

// SlotPath builds the lock file path for a given purpose/host/slot, per
// spec §4.3's naming: cpu_<purpose>_<host>_<slot>, or cpu_<purpose>_<slot>
// when host is empty (purpose "localhost" then gives cpu_localhost_<slot>).
func SlotPath(lockDir, purpose, host string, slot int) string {
	if host == "" {
		return filepath.Join(lockDir, fmt.Sprintf("cpu_%s_%d", purpose, slot))
	}
	return filepath.Join(lockDir, fmt.Sprintf("cpu_%s_%s_%d", purpose, host, slot))
}

// TryAcquire attempts a non-blocking exclusive lock on path, creating it
// if necessary. Returns ErrBusy if already held elsewhere.
func TryAcquire(path string) (*SlotLock, error) {
	return acquire(path, false)
}

// Acquire blocks until the lock at path is available.
func Acquire(path string) (*SlotLock, error) {
	return acquire(path, true)
}

func acquire(path string, blocking bool) (*SlotLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("lockfile: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}

	flockFlags := unix.LOCK_EX
	if !blocking {
		flockFlags |= unix.LOCK_NB
	}

	if err := unix.Flock(int(f.Fd()), flockFlags); err != nil {
		f.Close()
		if !blocking && (errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("lockfile: flock %s: %w", path, err)
	}

	return &SlotLock{path: path, file: f}, nil
}

// Release unlocks and closes the slot. The OS also releases the lock if
// the process exits without calling Release (spec §3's lifecycle note).
func (l *SlotLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return closeErr
}

package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrIO marks a failure to touch/stat/remove a timefile, distinct from
// the host simply having no record yet (spec §7's taxonomy).
var ErrIO = errors.New("lockfile: io error")

// defaultBackoffPeriod mirrors the original's 60-second default.
const defaultBackoffPeriod = 60 * time.Second

// BackoffPeriod reads DISTCC_BACKOFF_PERIOD (seconds); 0 disables backoff
// tracking entirely, matching dcc_backoff_is_enabled's special case.
func BackoffPeriod() time.Duration {
	v := os.Getenv("DISTCC_BACKOFF_PERIOD")
	if v == "" {
		return defaultBackoffPeriod
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil {
		return defaultBackoffPeriod
	}
	return time.Duration(secs) * time.Second
}

// timefilePath names the mtime-tracking file for (purpose, host), reusing
// SlotPath's naming scheme with slot 0 (timefiles aren't per-slot).
func timefilePath(lockDir, purpose, host string) string {
	return SlotPath(lockDir, purpose, host, 0) + ".time"
}

// MarkTimefile records "now" against host by touching its timefile, used
// to remember a host that was just disliked (failed to connect, etc).
func MarkTimefile(lockDir, purpose, host string) error {
	path := timefilePath(lockDir, purpose, host)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("%w: mkdir: %v", ErrIO, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	defer f.Close()
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("%w: chtimes %s: %v", ErrIO, path, err)
	}
	return nil
}

// RemoveTimefile clears a host's backoff record, used when a host is
// "enjoyed" (worked correctly). A missing file is not an error.
func RemoveTimefile(lockDir, purpose, host string) error {
	path := timefilePath(lockDir, purpose, host)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %v", ErrIO, path, err)
	}
	return nil
}

// CheckTimefile returns the mtime of host's timefile, or the zero Time if
// no record exists (spec: "no record for this file; that's fine").
func CheckTimefile(lockDir, purpose, host string) (time.Time, error) {
	path := timefilePath(lockDir, purpose, host)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	return info.ModTime(), nil
}

// InBackoff reports whether host is still within its backoff window.
func InBackoff(lockDir, purpose, host string, period time.Duration) (bool, error) {
	if period <= 0 {
		return false, nil
	}
	mtime, err := CheckTimefile(lockDir, purpose, host)
	if err != nil {
		return false, err
	}
	if mtime.IsZero() {
		return false, nil
	}
	return time.Since(mtime) < period, nil
}

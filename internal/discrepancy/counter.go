// Package discrepancy implements spec §4.11's fallback investigator: when
// a remote and local compilation disagree, decide whether that event is
// attributable to the build mutating its own inputs mid-flight (in which
// case it is silently ignored) or a genuine discrepancy worth mailing
// maintainers about and counting toward the cpp-where demotion threshold
// described in spec §4.6.
package discrepancy

import (
	"fmt"
	"os"
)

// DefaultThreshold is the discrepancy-count demotion threshold from
// spec §4.6 ("default 1"): a single genuine discrepancy is enough to
// force cpp_where=Client for the remainder of the build.
const DefaultThreshold = 1

// CounterPath derives the discrepancy counter file's location from the
// include-scanner socket path, per spec §4.11 ("Location is derived from
// the include-scanner socket path").
func CounterPath(includeServerSocket string) string {
	return includeServerSocket + ".discrepancies"
}

// Count returns the current discrepancy count for this build: the byte
// size of the counter file, or 0 if it doesn't exist yet.
func Count(counterPath string) (int, error) {
	info, err := os.Stat(counterPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("discrepancy: stat %s: %w", counterPath, err)
	}
	return int(info.Size()), nil
}

// Increment appends one byte to the counter file, growing it by one,
// matching spec §4.11's "appended by one byte" rule. Increment is
// monotonic within a build: callers never decrement or reset it.
func Increment(counterPath string) error {
	f, err := os.OpenFile(counterPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("discrepancy: open %s: %w", counterPath, err)
	}
	defer f.Close()
	if _, err := f.Write([]byte{0}); err != nil {
		return fmt.Errorf("discrepancy: write %s: %w", counterPath, err)
	}
	return nil
}

// ShouldDemote reports whether the discrepancy count has reached
// threshold, meaning every subsequent invocation in this build must
// demote to cpp_where=Client per spec §4.6/§4.11.
func ShouldDemote(counterPath string, threshold int) (bool, error) {
	n, err := Count(counterPath)
	if err != nil {
		return false, err
	}
	return n >= threshold, nil
}

// BuildStart returns the include-scanner socket's ctime, used as the
// "build-start instant" against which dependency freshness is judged
// (spec §4.11).
func BuildStart(includeServerSocket string) (os.FileInfo, error) {
	info, err := os.Stat(includeServerSocket)
	if err != nil {
		return nil, fmt.Errorf("discrepancy: stat include-server socket %s: %w", includeServerSocket, err)
	}
	return info, nil
}

// buildStartCtimeNanos pulls the OS-reported ctime out of a FileInfo.
// Unexported so tests can stub a fake clock via sys-level os.FileInfo
// implementations where needed; production callers always pass the
// result of os.Stat.
var buildStartCtimeNanos = ctimeNanos

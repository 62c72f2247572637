// Package tempfile tracks every temporary file and directory a process
// creates so it can be removed on exit, including from a signal handler
// (spec §4.14 and §7's "always clean up temp state" requirement).
package tempfile

import (
	"os"
	"sync/atomic"
)

// Registry is the process-wide cleanup list. Go signal handlers are
// ordinary goroutines, not the async-signal context the original C
// implementation had to survive, but the registry still avoids
// allocating on the removal path and uses an atomic pointer swap on add,
// mirroring the original's "atomic assignment, no realloc in place"
// discipline (original_source/src/cleanup.c) so a concurrent Cleanup call
// never observes a half-updated slice.
type Registry struct {
	entries atomic.Pointer[[]string]
}

// global is the process-wide registry used by package-level helpers; most
// callers only ever need one.
var global Registry

// Add registers path for later removal, appending to the end of the list.
// Directories should be added before the files they contain, since Cleanup
// removes in reverse order (files before their parent directories).
func Add(path string) {
	global.Add(path)
}

// Cleanup removes every registered path in reverse-registration order and
// empties the registry. If saveTemps is true (DISTCC_SAVE_TEMPS=1),
// entries are dropped from the list without being deleted, matching the
// original's debugging escape hatch.
func Cleanup(saveTemps bool) {
	global.Cleanup(saveTemps)
}

// SaveTempsEnabled reports whether DISTCC_SAVE_TEMPS=1 is set.
func SaveTempsEnabled() bool {
	return os.Getenv("DISTCC_SAVE_TEMPS") == "1"
}

func (r *Registry) Add(path string) {
	for {
		old := r.entries.Load()
		var oldSlice []string
		if old != nil {
			oldSlice = *old
		}
		next := make([]string, len(oldSlice)+1)
		copy(next, oldSlice)
		next[len(oldSlice)] = path
		if r.entries.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (r *Registry) Cleanup(saveTemps bool) {
	empty := []string{}
	old := r.entries.Swap(&empty)
	if old == nil {
		return
	}
	entries := *old

	// Last to first: directories get removed after the files inside them,
	// matching the original's stated reason for the traversal order.
	for i := len(entries) - 1; i >= 0; i-- {
		path := entries[i]
		if saveTemps {
			continue
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			// Try directory removal too, in case Remove failed because
			// the directory isn't empty yet (original tries rmdir then
			// unlink; Remove already does the equivalent single-entry
			// removal for both files and empty dirs, so a RemoveAll
			// fallback covers a non-empty leftover directory).
			_ = os.RemoveAll(path)
		}
	}
}

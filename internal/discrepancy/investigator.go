package discrepancy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Investigate implements spec §4.11: given the dotd file a server-side
// (or locally reproduced) compile produced, decide whether an observed
// remote/local disagreement should be attributed to the build having
// modified its own inputs mid-flight. If a dependency's ctime is at or
// after build-start and it doesn't match excludePattern, the discrepancy
// is self-inflicted and must not be mailed or counted; Investigate
// returns that dependency's name. When nothing excuses the event (no
// fresh dependency, no dotd file, or a dotd file older than build-start)
// it returns the empty string with a nil error, signaling "go ahead and
// mail/count".
//
// This mirrors dcc_fresh_dependency_exists: the first fresh, unexcluded
// dependency found short-circuits the scan.
func Investigate(dotdPath string, buildStart int64, excludePattern string) (freshDependency string, err error) {
	f, err := os.Open(dotdPath)
	if err != nil {
		// No dotd to inspect; nothing excuses the discrepancy, so the
		// caller should mail/count it.
		return "", nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("discrepancy: stat %s: %w", dotdPath, err)
	}
	if info.ModTime().UnixNano() < buildStart {
		// The .d file itself predates build-start; it can't be trusted
		// for this analysis.
		return "", nil
	}

	deps, err := parseDotdDependencies(f)
	if err != nil {
		return "", fmt.Errorf("discrepancy: parse %s: %w", dotdPath, err)
	}

	for _, dep := range deps {
		if excludePattern != "" {
			if matched, _ := filepath.Match(excludePattern, dep); matched {
				continue
			}
		}
		depInfo, statErr := os.Stat(dep)
		if statErr != nil {
			continue
		}
		if buildStartCtimeNanos(depInfo) >= buildStart {
			return dep, nil
		}
	}
	return "", nil
}

// parseDotdDependencies extracts every whitespace-separated dependency
// name after the first colon in a Makefile-style .d file, honoring
// trailing-backslash line continuations.
func parseDotdDependencies(f *os.File) ([]string, error) {
	r := bufio.NewReader(f)
	var buf strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, nil // no colon found; no dependencies to check
		}
		if b == ':' {
			break
		}
	}
	for {
		b, err := r.ReadByte()
		if err != nil {
			break
		}
		buf.WriteByte(b)
	}

	rest := buf.String()
	rest = strings.ReplaceAll(rest, "\\\n", " ")
	rest = strings.ReplaceAll(rest, "\\", "")
	fields := strings.Fields(rest)
	return fields, nil
}

// ShouldMailAndCount applies spec §4.11's top-level decision given the
// derived build-start instant and the dotd path of the failing/mismatched
// invocation. Returns false when a fresh, unexcluded dependency accounts
// for the discrepancy (do not mail, do not count); true otherwise.
func ShouldMailAndCount(includeServerSocket, dotdPath, excludePattern string) (bool, error) {
	startInfo, err := BuildStart(includeServerSocket)
	if err != nil {
		// No scanner socket to derive build-start from; per the
		// original's behavior this path is simply skipped and the
		// event is mailed/counted unconditionally.
		return true, nil
	}
	buildStart := buildStartCtimeNanos(startInfo)

	fresh, err := Investigate(dotdPath, buildStart, excludePattern)
	if err != nil {
		return false, err
	}
	return fresh == "", nil
}

// Package server implements the per-connection compile session the
// daemon runs for each accepted client (spec §4.8): compiler-identity
// checks, workspace materialization, argv rewriting for server-side
// preprocessing, compiler invocation, and the dotd/debug-info patchers
// applied to the response before it goes back to the client.
package server

import (
	"fmt"
	"os"
	"path"
	"strings"
)

// ErrCompilerNotAllowed is returned by ResolveCompiler when argv[0] fails
// every identity check (spec §4.8 step 5).
var ErrCompilerNotAllowed = fmt.Errorf("server: compiler not allowed")

// libexecDirs are the two locations spec §4.8 allows a bare compiler
// filename to resolve against when no DISTCC_CMDLIST is configured.
var libexecDirs = []string{"/usr/libexec/distcc", "/usr/lib/distcc"}

// creatorPathPrefixes are stripped before the absolute-path check so
// QtCreator-style invocations of /usr/bin/gcc or /bin/gcc still pass
// (distcc issue #279, carried from original_source/src/serve.c's
// dcc_check_compiler_whitelist).
var creatorPathPrefixes = []string{"/bin/", "/usr/bin/"}

// CmdList maps a compiler name (matched on its last NumWords path
// components) to the allowlisted absolute path to actually invoke,
// loaded from $DISTCC_CMDLIST.
type CmdList struct {
	NumWords int
	entries  map[string]string
}

// LoadCmdList reads a DISTCC_CMDLIST file: one absolute compiler path per
// line, indexed by its last numWords path components so a client request
// for any of several equivalent locations maps to this server's copy.
func LoadCmdList(path string, numWords int) (*CmdList, error) {
	if numWords <= 0 {
		numWords = 1
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server: read DISTCC_CMDLIST %s: %w", path, err)
	}
	cl := &CmdList{NumWords: numWords, entries: make(map[string]string)}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cl.entries[lastWords(line, numWords)] = line
	}
	return cl, nil
}

// lastWords returns the last n '/'-separated components of p, joined
// back with '/' (matching DISTCC_CMDLIST_NUMWORDS's suffix-match rule).
func lastWords(p string, n int) string {
	parts := strings.Split(p, "/")
	if n >= len(parts) {
		return p
	}
	return strings.Join(parts[len(parts)-n:], "/")
}

// lookup maps compilerName to its allowlisted replacement, matching on
// the same number of trailing path components as it was indexed with.
func (cl *CmdList) lookup(compilerName string) (string, bool) {
	key := lastWords(compilerName, cl.NumWords)
	resolved, ok := cl.entries[key]
	return resolved, ok
}

// ResolveCompiler implements spec §4.8 step 5: decide whether argv[0]
// names a compiler this server will run, and what to actually exec.
//
// If cmdList is non-nil, argv[0] must match one of its entries (by its
// last NumWords components); the matching absolute path is returned
// verbatim regardless of what argv[0] said. Otherwise, unless
// enableTCPInsecure, argv[0] must be a bare filename (the /bin/ and
// /usr/bin/ prefixes are stripped first) that resolves to an executable
// under one of libexecDirs.
func ResolveCompiler(argv0 string, cmdList *CmdList, enableTCPInsecure bool) (string, error) {
	if cmdList != nil {
		resolved, ok := cmdList.lookup(argv0)
		if !ok {
			return "", fmt.Errorf("%w: %q not in DISTCC_CMDLIST", ErrCompilerNotAllowed, argv0)
		}
		return resolved, nil
	}

	if enableTCPInsecure {
		return argv0, nil
	}

	name := argv0
	for _, prefix := range creatorPathPrefixes {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: %q cannot be an absolute path (set DISTCC_CMDLIST or --enable-tcp-insecure)", ErrCompilerNotAllowed, argv0)
	}

	for _, dir := range libexecDirs {
		candidate := path.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q not found under %v", ErrCompilerNotAllowed, name, libexecDirs)
}

// unsafeOptionPrefixes names argv options spec §4.8 rejects outright:
// -fplugin= can load arbitrary code into the compiler process, and
// -specs= can redirect it to run arbitrary commands.
var unsafeOptionPrefixes = []string{"-fplugin=", "-specs="}

// RejectUnsafeOptions returns an error if argv contains any option the
// server refuses to run under any configuration.
func RejectUnsafeOptions(argv []string) error {
	for _, a := range argv {
		for _, prefix := range unsafeOptionPrefixes {
			if strings.HasPrefix(a, prefix) {
				return fmt.Errorf("server: %q is not supported for remote compilation", a)
			}
		}
	}
	return nil
}

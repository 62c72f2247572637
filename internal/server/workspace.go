package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencompile/distcc/internal/tempfile"
)

// Workspace is the per-job temp directory rooted at $TMPDIR into which a
// server-cpp job's client working directory and uploaded files are
// materialized (spec §4.8 step 3): "the only way absolute paths in the
// command line can still refer to the right files".
type Workspace struct {
	TempRoot  string
	ClientCwd string
	ServerCwd string
}

// NewWorkspace allocates a fresh temp root and recreates clientCwd inside
// it, so a later chdir(ServerCwd) makes relative paths in the client's
// argv resolve the same way they did on the client.
func NewWorkspace(clientCwd string) (*Workspace, error) {
	tempRoot, err := tempfile.NewDir("job")
	if err != nil {
		return nil, fmt.Errorf("server: new workspace: %w", err)
	}
	serverCwd := filepath.Join(tempRoot, clientCwd)
	if err := os.MkdirAll(serverCwd, 0700); err != nil {
		return nil, fmt.Errorf("server: mkdir workspace cwd %s: %w", serverCwd, err)
	}
	return &Workspace{TempRoot: tempRoot, ClientCwd: clientCwd, ServerCwd: serverCwd}, nil
}

// Rehome prefixes an absolute client-side path with the workspace's temp
// root. Relative paths are returned unchanged: the chdir to ServerCwd
// already makes them resolve correctly.
func (w *Workspace) Rehome(p string) string {
	if !strings.HasPrefix(p, "/") {
		return p
	}
	return filepath.Join(w.TempRoot, p)
}

// MaterializeFile places one include-scanner-delivered file at its
// rehomed path under the workspace, creating ancestor directories as
// needed. isLink means body is a symlink target rather than file
// contents (spec §4.8 step 6's LINK|FILE alternative).
func (w *Workspace) MaterializeFile(mirrorPath string, body []byte, isLink bool) error {
	dest := w.Rehome(mirrorPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return fmt.Errorf("server: mkdir ancestors of %s: %w", dest, err)
	}
	if isLink {
		target := string(body)
		os.Remove(dest) // symlink() fails if dest already exists
		if err := os.Symlink(target, dest); err != nil {
			return fmt.Errorf("server: symlink %s -> %s: %w", dest, target, err)
		}
		return nil
	}
	if err := os.WriteFile(dest, body, 0644); err != nil {
		return fmt.Errorf("server: write %s: %w", dest, err)
	}
	return nil
}

package tempfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// TmpTop returns the directory under which distcc creates its temp state:
// $TMPDIR, falling back to /tmp, matching dcc_get_tmp_top.
func TmpTop() string {
	if v := os.Getenv("TMPDIR"); v != "" {
		return v
	}
	return "/tmp"
}

// NewDir creates a fresh "<TmpTop>/distcc_<prefix>_XXXXXX" directory,
// registers it for cleanup, and returns its path (dcc_get_new_tmpdir).
func NewDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp(TmpTop(), fmt.Sprintf("distcc_%s_", prefix))
	if err != nil {
		return "", fmt.Errorf("tempfile: mkdir temp: %w", err)
	}
	Add(dir)
	return dir, nil
}

// NewFile creates an empty temp file named "<TmpTop>/distcc_<prefix>XXXXXX<ext>",
// registers it for cleanup, and returns its path. The file is pre-touched
// (spec §4.5 relies on this: the compiler child writes through a path that
// already exists) and then closed, matching the original's rationale that
// it cannot trust the compiler to create the file securely itself.
func NewFile(prefix, ext string) (string, error) {
	f, err := os.CreateTemp(TmpTop(), fmt.Sprintf("distcc_%s*%s", prefix, ext))
	if err != nil {
		return "", fmt.Errorf("tempfile: create temp: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		Add(path)
		return "", fmt.Errorf("tempfile: close temp: %w", err)
	}
	Add(path)
	return path, nil
}

// PathInDir joins a fixed leaf name under a directory already returned by
// NewDir, for callers that need a predictable (not randomized) filename --
// e.g. the per-session dotd path.
func PathInDir(dir, name string) string {
	return filepath.Join(dir, name)
}

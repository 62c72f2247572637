// Package includesrv is the bridge client for the include-scanner daemon
// (spec §4.12): a side process that, given a compile command, returns the
// exact set of headers it transitively includes, pre-staged (and
// sometimes pre-compressed) under its own private mirror tree.
package includesrv

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/opencompile/distcc/internal/wire"
)

// DefaultDialTimeout bounds how long the client waits for the
// include-scanner's UNIX socket to accept a connection.
const DefaultDialTimeout = 2 * time.Second

// File is one entry the scanner reports: an absolute path under its
// private mirror tree, and whether it should be sent as a symlink (LINK)
// or a real file body (FILE).
type File struct {
	MirrorPath string
	IsLink     bool
}

// SocketPath resolves $INCLUDE_SERVER_PORT, the UNIX socket path the
// scanner listens on (the env var's name is a historical holdover from
// when it was a TCP port; it's a filesystem path).
func SocketPath() (string, bool) {
	p := os.Getenv("INCLUDE_SERVER_PORT")
	return p, p != ""
}

// Query connects to the scanner at socketPath, sends CDIR then ARGC/ARGV,
// and reads back the scanner's own ARGC/ARGV reply (spec §4.12's
// contract). Each returned string names one file in the scanner's mirror
// tree; a trailing ".link" marks a symlink entry rather than a file body.
func Query(socketPath, cwd string, argv []string, timeout time.Duration) ([]File, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("includesrv: dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	stream := wire.NewStream(conn, false, nil)

	if err := stream.WriteBody(wire.TagCDIR, []byte(cwd)); err != nil {
		return nil, fmt.Errorf("includesrv: write CDIR: %w", err)
	}

	if err := stream.WriteARGV(argv); err != nil {
		return nil, fmt.Errorf("includesrv: write argv: %w", err)
	}

	replyArgv, err := stream.ReadARGV()
	if err != nil {
		return nil, fmt.Errorf("includesrv: read reply argv: %w", err)
	}

	files := make([]File, 0, len(replyArgv))
	for _, path := range replyArgv {
		isLink := strings.HasSuffix(path, ".link")
		files = append(files, File{MirrorPath: strings.TrimSuffix(path, ".link"), IsLink: isLink})
	}
	return files, nil
}

// mirrorDirDepth is the number of path components the scanner mangles in
// ahead of the real path (its own dcc_get_original_fname names it
// INCLUDE_SERVER_DIR_DEPTH): every mirror path is absolute, so the real
// path starts right after the fourth slash.
const mirrorDirDepth = 3

// UnmangleOriginalPath recovers the real filesystem path the scanner's
// mirrorPath stands in for. mirrorPath is absolute, of the shape
// "/aaa/bbb/ccc/<real-path>[.lzo][.abs]"; UnmangleOriginalPath drops the
// mirrorDirDepth mangled components, then a trailing ".abs", then a
// trailing ".lzo".
func UnmangleOriginalPath(mirrorPath string) (path string, wasAbs bool, wasLZO bool) {
	trimmed := strings.TrimPrefix(mirrorPath, "/")
	parts := strings.SplitN(trimmed, "/", mirrorDirDepth+1)
	if len(parts) <= mirrorDirDepth {
		return mirrorPath, false, false
	}
	rest := parts[mirrorDirDepth]

	// ".abs" is the outermost suffix when both are present
	// ("<real-path>.lzo.abs"), so it's stripped first.
	if strings.HasSuffix(rest, ".abs") {
		rest = strings.TrimSuffix(rest, ".abs")
		wasAbs = true
	}
	if strings.HasSuffix(rest, ".lzo") {
		rest = strings.TrimSuffix(rest, ".lzo")
		wasLZO = true
	}
	if wasAbs {
		rest = "/" + rest
	}
	return rest, wasAbs, wasLZO
}

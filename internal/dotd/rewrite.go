// Package dotd rewrites Makefile dependency files (.d) produced by a
// server-side compile so they name the client's paths instead of the
// server's temp workspace (spec §4.9).
package dotd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// maxLineLen bounds a single line, matching spec §4.9's "lines <=
// 2xMAXPATHLEN"; MAXPATHLEN is 4096 on Linux.
const maxLineLen = 2 * 4096

// errLineTooLong is returned when a dotd line exceeds maxLineLen.
var errLineTooLong = fmt.Errorf("dotd: line exceeds %d bytes", maxLineLen)

// Rewrite streams serverDotdPath line by line, replacing the first
// occurrence of serverOutName on each line with clientOutName (rehoming
// the dependency *target*) and every occurrence of serverTempRoot with
// the empty string (un-prefixing the server-side rehomed paths). The
// transformed content is written to a new file at outPath.
func Rewrite(serverDotdPath, serverTempRoot, clientOutName, serverOutName, outPath string) error {
	in, err := os.Open(serverDotdPath)
	if err != nil {
		return fmt.Errorf("dotd: open %s: %w", serverDotdPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("dotd: create %s: %w", outPath, err)
	}
	defer out.Close()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLen)
	w := bufio.NewWriter(out)

	for scanner.Scan() {
		line := RewriteLine(scanner.Text(), serverTempRoot, clientOutName, serverOutName)
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("dotd: write %s: %w", outPath, err)
		}
		if _, err := w.WriteString("\n"); err != nil {
			return fmt.Errorf("dotd: write %s: %w", outPath, err)
		}
	}
	if err := scanner.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return errLineTooLong
		}
		return fmt.Errorf("dotd: read %s: %w", serverDotdPath, err)
	}

	return w.Flush()
}

// RewriteLine applies one line's transformation: first occurrence of
// serverOutName becomes clientOutName, then every occurrence of
// serverTempRoot is dropped.
func RewriteLine(line, serverTempRoot, clientOutName, serverOutName string) string {
	if serverOutName != "" {
		if idx := strings.Index(line, serverOutName); idx >= 0 {
			line = line[:idx] + clientOutName + line[idx+len(serverOutName):]
		}
	}
	if serverTempRoot != "" {
		line = strings.ReplaceAll(line, serverTempRoot, "")
	}
	return line
}

package client

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
)

// runLocal spawns the compiler with argv unchanged: no fd redirection,
// since the compiler may legitimately read stdin (spec §4.6's "Local
// execution").
func (s *Session) runLocal(argv []string) Outcome {
	s.logf("compile locally", argv)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.cwd
	cmd.Stdin = os.Stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = 1
	}
	if stderr.Len() == 0 && err != nil {
		stderr.WriteString(fmt.Sprintln(err))
	}

	return Outcome{ExitCode: exitCode, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
}

// runLocalCaptured is like runLocal but used for the post-remote-failure
// retry (spec §4.6's local-retry-on-failure branch), where the caller
// still needs the raw exit status to compare against the remote one.
func runLocalCaptured(argv []string, cwd string) (exitCode int, stdout, stderr []byte, err error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Stdin = os.Stdin
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if runErr != nil {
		exitCode = 1
	}
	return exitCode, outBuf.Bytes(), errBuf.Bytes(), runErr
}

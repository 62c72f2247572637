package transport

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// SSHConn adapts an ssh subprocess's stdin/stdout pipes to a ReadWriteCloser,
// so the session code downstream of "Transport open" (spec §4.6) can treat
// TCP and SSH identically: two file descriptors behaving as a byte stream.
type SSHConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (s *SSHConn) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *SSHConn) Write(p []byte) (int, error) { return s.stdin.Write(p) }

// Close closes both pipes and waits for the ssh subprocess to exit.
func (s *SSHConn) Close() error {
	stdinErr := s.stdin.Close()
	stdoutErr := s.stdout.Close()
	waitErr := s.cmd.Wait()
	if stdinErr != nil {
		return stdinErr
	}
	if stdoutErr != nil {
		return stdoutErr
	}
	return waitErr
}

// DialSSH forks an ssh subprocess connecting to host (as user, if
// non-empty) and running remoteDistccd with the standardized trailer
// "--inetd --enable-tcp-insecure" (spec §4.6). sshPath overrides the ssh
// binary used, honoring DISTCC_SSH; empty means "ssh" from PATH.
func DialSSH(sshPath, user, host, remoteDistccd string) (*SSHConn, error) {
	if sshPath == "" {
		sshPath = "ssh"
	}
	target := host
	if user != "" {
		target = user + "@" + host
	}

	remoteCmd := fmt.Sprintf("%s --inetd --enable-tcp-insecure", remoteDistccd)
	cmd := exec.Command(sshPath, target, remoteCmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: ssh stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: ssh stdout pipe: %w", err)
	}
	// Inherit stderr so ssh's own diagnostics (auth failures, host key
	// prompts) reach the user instead of being swallowed.
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start ssh to %s: %w", target, err)
	}

	return &SSHConn{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

package server

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"
)

// Outcome is the result of running the compiler for one job: what would
// have gone to its stdout/stderr/exit status had it run on the client's
// own machine (spec §4.8 step 8).
type Outcome struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// RunCompiler invokes compilerPath with args in cwd, capturing stdout and
// stderr in memory (spec §4.8 step 7's stdin /dev/null -- exec.Command
// already leaves Stdin nil, which Go treats as reading from the null
// device -- and step 8's captured streams). If ioTimeout is positive and
// the compiler is still running when it elapses, the process group is
// killed and the run is reported as a timeout, matching the client's own
// expectation that a wedged remote job eventually gives up rather than
// hanging the connection forever.
func RunCompiler(compilerPath string, args []string, cwd string, ioTimeout time.Duration) (Outcome, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if ioTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, ioTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, compilerPath, args...)
	cmd.Dir = cwd
	// The compiler gets its own process group so a timeout kills it
	// together with any children it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) }
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return Outcome{ExitCode: -1, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, ctx.Err()
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if err != nil {
		return Outcome{}, err
	}

	return Outcome{ExitCode: exitCode, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

package client

import (
	"os"
	"os/exec"

	"github.com/opencompile/distcc/internal/tempfile"
)

// preprocessJob tracks the in-flight cpp child spawned by startPreprocess,
// so the caller can overlap network connect with preprocessing and only
// block on the child right before it needs the preprocessed bytes (spec
// §4.5 step 4: "Returns the pid immediately so the network connect can
// proceed in parallel").
type preprocessJob struct {
	cmd      *exec.Cmd
	destPath string
	devNull  *os.File
	out      *os.File
}

// startPreprocess implements spec §4.5: copy argv, strip the output
// option, turn -c/-S into -E, and spawn the compiler with stdout
// redirected to a fresh temp file holding the preprocessed source.
func startPreprocess(argv []string, cwd, preprocessedExt string) (*preprocessJob, error) {
	destPath, err := tempfile.NewFile("distcc_cpp", preprocessedExt)
	if err != nil {
		return nil, err
	}

	cppArgv := stripOutputAndForceDashE(argv)

	cmd := exec.Command(cppArgv[0], cppArgv[1:]...)
	cmd.Dir = cwd

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return nil, err
	}
	cmd.Stdin = devNull

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		devNull.Close()
		return nil, err
	}
	cmd.Stdout = out
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		devNull.Close()
		out.Close()
		return nil, err
	}

	return &preprocessJob{cmd: cmd, destPath: destPath, devNull: devNull, out: out}, nil
}

// wait blocks for the preprocessor child and reports its exit status.
// Per spec §4.6's Send phase: "if cpp failed, stop -- local fallback now
// gains nothing".
func (j *preprocessJob) wait() (exitCode int, err error) {
	waitErr := j.cmd.Wait()
	j.devNull.Close()
	j.out.Close()
	if j.cmd.ProcessState != nil {
		return j.cmd.ProcessState.ExitCode(), nil
	}
	return 1, waitErr
}

// stripOutputAndForceDashE drops any -o/-o<file> argument and replaces
// the first -c or -S with -E, matching spec §4.5 step 2.
func stripOutputAndForceDashE(argv []string) []string {
	out := make([]string, 0, len(argv))
	replaced := false
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "-o":
			i++ // skip the following filename too
		case len(arg) > 2 && arg[:2] == "-o":
			// glued -o<file>; drop it
		case (arg == "-c" || arg == "-S") && !replaced:
			out = append(out, "-E")
			replaced = true
		default:
			out = append(out, arg)
		}
	}
	if !replaced {
		out = append(out, "-E")
	}
	return out
}

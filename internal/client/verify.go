package client

import (
	"os"

	"github.com/opencompile/distcc/internal/argvanalyzer"
	"github.com/opencompile/distcc/internal/discrepancy"
	"github.com/opencompile/distcc/internal/hostlist"
	"github.com/opencompile/distcc/internal/lockfile"
)

// verifyAndFallback implements spec §4.6's Verify-and-fallback phase.
func (s *Session) verifyAndFallback(host hostlist.HostDef, result argvanalyzer.Result, reply remoteReply) (outcome Outcome, retry bool) {
	if reply.status == 0 {
		lockfile.RemoveTimefile(s.opts.LockDir, purposeCompile, host.Hostname)
		return Outcome{ExitCode: 0, Stdout: reply.stdout, Stderr: reply.stderr}, false
	}

	if os.Getenv("DISTCC_SKIP_LOCAL_RETRY") != "" {
		return Outcome{ExitCode: reply.status, Stdout: reply.stdout, Stderr: reply.stderr}, false
	}
	if os.Getenv("DISTCC_FALLBACK") == "0" {
		return Outcome{ExitCode: reply.status, Stdout: reply.stdout, Stderr: reply.stderr}, false
	}

	if reply.status >= 128 {
		// Crash or transport-level problem: this host is disliked, try
		// the next one.
		lockfile.MarkTimefile(s.opts.LockDir, purposeCompile, host.Hostname)
		return Outcome{ExitCode: reply.status, Stdout: reply.stdout, Stderr: reply.stderr}, true
	}

	// Normal compiler error (<128): retry locally and compare.
	localExit, localOut, localErr, _ := runLocalCaptured(result.FilteredArgv, s.cwd)

	if localExit != reply.status {
		s.recordDiscrepancy(result, reply)
	}

	return Outcome{ExitCode: localExit, Stdout: localOut, Stderr: localErr}, false
}

// recordDiscrepancy implements spec §4.11: before counting and mailing,
// check whether the build itself modified a dependency after build-start
// -- if so, this is self-inflicted and not worth reporting.
func (s *Session) recordDiscrepancy(result argvanalyzer.Result, reply remoteReply) {
	if s.opts.IncludeServerSocket == "" {
		return
	}

	shouldReport := true
	if reply.dotdPath != "" {
		ok, err := discrepancy.ShouldMailAndCount(s.opts.IncludeServerSocket, reply.dotdPath, s.opts.ExcludeFreshFiles)
		if err == nil {
			shouldReport = ok
		}
	}
	if !shouldReport {
		return
	}

	counterPath := discrepancy.CounterPath(s.opts.IncludeServerSocket)
	discrepancy.Increment(counterPath)

	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(
			"distcc-pump email",
			"remote compilation of '"+result.InputFile+"' failed, retried locally and got a different result.",
		)
	}
}

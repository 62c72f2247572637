package client

import (
	"net"
	"os"

	"github.com/opencompile/distcc/internal/argvanalyzer"
	"github.com/opencompile/distcc/internal/discrepancy"
	"github.com/opencompile/distcc/internal/hostlist"
	"github.com/opencompile/distcc/internal/includesrv"
	"github.com/opencompile/distcc/internal/lockfile"
	"github.com/opencompile/distcc/internal/wire"
)

const defaultRetryCap = 3

// runDistributed drives spec §4.6's full diagram from PickHost onward,
// falling back to local compilation on any remote failure per the
// Verify-and-fallback rules.
func (s *Session) runDistributed(result argvanalyzer.Result) Outcome {
	tried := 0
	for {
		picked, err := s.pickHost()
		if err != nil {
			s.logf("no hosts available:", err)
			return s.runLocal(result.FilteredArgv)
		}

		outcome, retry := s.runOneHost(picked, result)
		picked.slot.Release()
		if !retry {
			return outcome
		}

		tried++
		cap := defaultRetryCap
		if lockfile.BackoffPeriod() > 0 {
			cap = -1 // unlimited retries once backoff is enabled
		}
		if cap >= 0 && tried >= cap {
			return outcome
		}
	}
}

// runOneHost attempts one full request/reply exchange against the host
// picked by PickHost. retry reports whether the caller should go back to
// PickHost and try a different host.
func (s *Session) runOneHost(picked pickedHost, result argvanalyzer.Result) (outcome Outcome, retry bool) {
	host := picked.host

	if host.Mode == hostlist.ModeLocal {
		return s.runLocal(result.FilteredArgv), false
	}

	host = s.adjustCppWhere(host, result)

	preprocessedAlready := argvanalyzer.IsPreprocessed(result.InputExt, s.opts.AllowAssemblyInput)

	// The include-scanner query (and its possible demotion to client-cpp
	// on a missing socket or a failed query) must run before the
	// client-cpp setup below, since that setup depends on the final,
	// post-demotion value of host.CppWhere (spec §4.6: "On failure,
	// demote to client-cpp and continue").
	var scanned []includesrv.File
	if host.CppWhere == hostlist.CppServer {
		sockPath, ok := includesrv.SocketPath()
		if !ok {
			host.CppWhere = hostlist.CppClient
		} else {
			files, err := includesrv.Query(sockPath, s.cwd, result.FilteredArgv, includesrv.DefaultDialTimeout)
			if err != nil {
				host.CppWhere = hostlist.CppClient
			} else {
				scanned = files
			}
		}
	}

	var cppJob *preprocessJob
	var localCPPSlot *lockfileSlotReleaser
	if host.CppWhere == hostlist.CppClient && !preprocessedAlready {
		slot, err := s.acquireLocalCPPSlot()
		if err != nil {
			lockfile.MarkTimefile(s.opts.LockDir, purposeCompile, host.Hostname)
			return s.runLocal(result.FilteredArgv), true
		}
		localCPPSlot = &lockfileSlotReleaser{slot}
		defer localCPPSlot.release()

		suffix, ok := argvanalyzer.PreprocessedSuffix(result.InputExt)
		if !ok {
			suffix = "i"
		}
		job, err := startPreprocess(result.FilteredArgv, s.cwd, "."+suffix)
		if err != nil {
			return s.runLocal(result.FilteredArgv), true
		}
		cppJob = job
	}

	conn, err := s.openTransport(host)
	if err != nil {
		lockfile.MarkTimefile(s.opts.LockDir, purposeCompile, host.Hostname)
		return s.runLocal(result.FilteredArgv), true
	}
	defer conn.Close()

	bulk := &wire.BulkTransport{IOTimeout: s.opts.IOTimeout}
	stream := wire.NewStream(conn, host.Compression == hostlist.CompressionLZO1X, bulk)

	if nc, ok := conn.(net.Conn); ok {
		wire.SetCork(nc, true)
		defer wire.SetCork(nc, false)
	}
	sendErr := sendRequest(stream, remoteRequest{
		protover:  host.Protover,
		cppServer: host.CppWhere == hostlist.CppServer,
		argv:      result.FilteredArgv,
		cwd:       s.cwd,
		scanned:   scanned,
		cppJob:    cppJob,
	})
	if sendErr != nil {
		lockfile.MarkTimefile(s.opts.LockDir, purposeCompile, host.Hostname)
		return s.runLocal(result.FilteredArgv), true
	}

	serrPath, err := newSerrTempFile()
	if err != nil {
		return s.runLocal(result.FilteredArgv), true
	}
	wantDotd := hasDotdRequest(result.FilteredArgv)
	dotdDest, _ := dotdOutputPath(result.FilteredArgv, result.OutputFile)

	reply, err := recvReply(stream, result.OutputFile, serrPath, dotdDest, wantDotd)
	if err != nil {
		lockfile.MarkTimefile(s.opts.LockDir, purposeCompile, host.Hostname)
		return s.runLocal(result.FilteredArgv), true
	}

	return s.verifyAndFallback(host, result, reply)
}

// lockfileSlotReleaser wraps a *lockfile.SlotLock so a nil receiver (no
// slot was ever acquired, e.g. the host stayed server-cpp) is a no-op
// release instead of requiring a nil check at every call site.
type lockfileSlotReleaser struct {
	slot interface{ Release() error }
}

func (r *lockfileSlotReleaser) release() {
	if r == nil || r.slot == nil {
		return
	}
	r.slot.Release()
}

func hasDotdRequest(argv []string) bool {
	for _, a := range argv {
		if a == "-MD" || a == "-MMD" {
			return true
		}
	}
	return false
}

func dotdOutputPath(argv []string, outputFile string) (string, bool) {
	for i, a := range argv {
		if a == "-MF" && i+1 < len(argv) {
			return argv[i+1], true
		}
	}
	if hasDotdRequest(argv) {
		return replaceExt(outputFile, ".d"), true
	}
	return "", false
}

func replaceExt(name, newExt string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i] + newExt
		}
		if name[i] == '/' {
			break
		}
	}
	return name + newExt
}

// adjustCppWhere implements spec §4.6's Discrepancy-adjustment phase:
// demote to client-cpp if the discrepancy count has reached the
// threshold, the input is already preprocessed, or any of the CPATH
// family is set, recomputing protover from features afterward.
func (s *Session) adjustCppWhere(host hostlist.HostDef, result argvanalyzer.Result) hostlist.HostDef {
	if host.CppWhere != hostlist.CppServer {
		return host
	}

	demote := false

	if s.opts.IncludeServerSocket != "" {
		threshold := s.opts.DiscrepancyThreshold
		if threshold <= 0 {
			threshold = discrepancy.DefaultThreshold
		}
		counterPath := discrepancy.CounterPath(s.opts.IncludeServerSocket)
		if should, err := discrepancy.ShouldDemote(counterPath, threshold); err == nil && should {
			demote = true
		}
	}

	if argvanalyzer.IsPreprocessed(result.InputExt, s.opts.AllowAssemblyInput) {
		demote = true
	}

	if os.Getenv("CPATH") != "" || os.Getenv("C_INCLUDE_PATH") != "" || os.Getenv("CPLUS_INCLUDE_PATH") != "" {
		demote = true
	}

	if !demote {
		return host
	}

	host.CppWhere = hostlist.CppClient
	if protover := hostlist.ProtoverOf(host.Compression, host.CppWhere); protover != 0 {
		host.Protover = protover
	}
	return host
}

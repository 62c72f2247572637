// Package client implements the distcc client-side job pipeline: argv
// classification, host scheduling, the send/receive protocol exchange,
// and the local-fallback/discrepancy story (spec §4.4-§4.11).
package client

import (
	"time"

	"github.com/opencompile/distcc/internal/argvanalyzer"
	"github.com/opencompile/distcc/internal/common"
	"github.com/opencompile/distcc/internal/discrepancy"
	"github.com/opencompile/distcc/internal/hostlist"
)

// Options configures one Session. Most fields have a distcc environment
// variable behind them (spec §6); cmd/distcc is responsible for reading
// those and filling this struct in.
type Options struct {
	Hosts hostlist.HostList

	// RecursionLevel is read from a guard environment variable the
	// client sets on its own child processes; non-zero forces LocalAll
	// regardless of the argv analyzer's verdict (spec §4.6).
	RecursionLevel int

	LockDir        string
	ConnectTimeout time.Duration
	PickHostSleep  time.Duration
	IOTimeout      time.Duration
	LocalSlotsCpp  int
	SSHPath        string
	RemoteDistccd  string
	SocksProxyAddr string

	SaveTemps            bool
	Fallback             bool
	SkipLocalRetry       bool
	DiscrepancyThreshold int
	ExcludeFreshFiles    string
	IncludeServerSocket  string
	AllowAssemblyInput   bool
	RewriteCross         bool

	Notifier discrepancy.DiscrepancyNotifier
	Logger   *common.LoggerWrapper
}

// Session carries one compiler invocation through the pipeline.
type Session struct {
	opts Options
	argv []string
	cwd  string
}

// NewSession wraps one parent-process argv/cwd pair.
func NewSession(opts Options, argv []string, cwd string) *Session {
	if opts.Notifier == nil {
		opts.Notifier = discrepancy.NoopNotifier{}
	}
	return &Session{opts: opts, argv: argv, cwd: cwd}
}

// Outcome is the result handed back to cmd/distcc for process exit.
type Outcome struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Run drives the full state machine described in spec §4.6's diagram:
// Analyze, then either LocalRun directly, or PickHost/LocalCpp/Connect/
// SendReq/RecvReply/Fallback/LocalRun.
func (s *Session) Run() Outcome {
	if s.opts.RewriteCross {
		s.argv = argvanalyzer.RewriteCrossCompiler(s.argv)
	}

	result := argvanalyzer.Analyze(s.argv, argvanalyzer.Options{AllowAssemblyInput: s.opts.AllowAssemblyInput})

	if result.Verdict != argvanalyzer.Distribute || s.opts.RecursionLevel != 0 {
		return s.runLocal(result.FilteredArgv)
	}

	if len(s.opts.Hosts.Up().Hosts) == 0 {
		s.logf("no hosts available, running locally")
		return s.runLocal(result.FilteredArgv)
	}

	return s.runDistributed(result)
}

func (s *Session) logf(v ...interface{}) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(1, v...)
	}
}

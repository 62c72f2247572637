// distcc is the client-side masquerade binary (spec §4.6): it classifies
// its own argv, either runs the compiler locally or ships the job to a
// host from the configured list, and exits with the compiler's own exit
// code (or one of internal/common's fixed codes on a distcc-level
// failure).
package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/opencompile/distcc/internal/common"
	"github.com/opencompile/distcc/internal/discrepancy"
	"github.com/opencompile/distcc/internal/hostlist"
	"github.com/opencompile/distcc/internal/lockfile"

	"github.com/opencompile/distcc/internal/client"
)

// safeguardEnv is read and re-written across distcc's own re-exec of
// itself (masquerade symlinks can point distcc at distcc), matching
// original_source/src/safeguard.c's dcc_recursion_safeguard/
// dcc_increment_safeguard: unset means level 0, present means at least
// level 1, and its numeral tracks how deep the recursion has gone.
const safeguardEnv = "_DISTCC_SAFEGUARD"

func failedStart(v ...interface{}) {
	fmt.Fprintln(os.Stderr, append([]interface{}{"distcc:"}, v...)...)
	os.Exit(common.ExitBadArguments)
}

func recursionSafeguardLevel() int {
	env := os.Getenv(safeguardEnv)
	if env == "" {
		return 0
	}
	level, err := strconv.Atoi(env)
	if err != nil || level == 0 {
		return 1
	}
	return level
}

// incrementSafeguard sets safeguardEnv in this process's own environment
// so that any compiler or preprocessor it spawns -- and which might, by
// misconfiguration, resolve back to this same distcc masquerade binary
// -- inherits a higher level and refuses to recurse further.
func incrementSafeguard(level int) {
	os.Setenv(safeguardEnv, strconv.Itoa(level+1))
}

func main() {
	showVersion := common.CmdEnvBool("Show version and exit.", false,
		"version", "")
	showHosts := common.CmdEnvBool("Print the resolved host list and exit.", false,
		"show-hosts", "")
	showJobs := common.CmdEnvBool("Print the number of local CPUs (a reasonable -j argument) and exit.", false,
		"j", "")
	scanIncludes := common.CmdEnvBool("Print the include files the given compile would need and exit,\nwithout compiling anything.", false,
		"scan-includes", "")

	distccDir := common.CmdEnvString("Directory holding this client's state (lock/, hosts).\nDefaults to $DISTCC_DIR or ~/.distcc.", "",
		"", "DISTCC_DIR")
	logFile := common.CmdEnvString("A filename to log to, by default none.", "",
		"", "DISTCC_LOG")
	logVerbosity := common.CmdEnvInt("Logger verbosity level for INFO (-1 off, default 0, max 2).", 0,
		"", "DISTCC_VERBOSE")
	sshPath := common.CmdEnvString("Path to the ssh client used for SSH-transport hosts.", "ssh",
		"", "DISTCC_SSH")
	saveTemps := common.CmdEnvBool("Keep temporary files instead of deleting them on exit.", false,
		"", "DISTCC_SAVE_TEMPS")
	fallback := common.CmdEnvBool("Retry locally when a remote compile fails. Default on.", true,
		"", "DISTCC_FALLBACK")
	skipLocalRetry := common.CmdEnvBool("Treat remote compile failure as final instead of retrying locally.", false,
		"", "DISTCC_SKIP_LOCAL_RETRY")
	ioTimeout := common.CmdEnvDuration("Timeout for a stalled remote connection.", 300*time.Second,
		"", "DISTCC_IO_TIMEOUT")
	maxDiscrepancy := common.CmdEnvInt("Discrepancy count at which server-side preprocessing is turned off\n(cpp_where=client) for the rest of the build.", 1,
		"", "DISTCC_MAX_DISCREPANCY")
	excludeFreshFiles := common.CmdEnvString("Dependency path glob excluded from discrepancy detection\n(e.g. generated headers the build itself writes).", "",
		"", "DISTCC_EXCLUDE_FRESH_FILES")
	includeServerSocket := common.CmdEnvString("Unix socket of a running include-server, enabling discrepancy\ndetection. Unset disables it entirely.", "",
		"", "INCLUDE_SERVER_PORT")

	// These have no environment variable of their own in the external
	// interface list; they're internal tuning knobs left at their
	// distcc-derived defaults rather than registered as bare flags.
	const (
		connectTimeout = 10 * time.Second
		localSlotsCpp  = 8
	)
	// The pick-host retry sleep comes from DISTCC_PAUSE_TIME_MSEC
	// (default 1000 ms, plus jitter).
	pickHostSleep := lockfile.PauseDuration()
	allowAssemblyInput := false
	socksProxy := ""

	common.ParseCmdFlagsCombiningWithEnv()

	if *showVersion {
		fmt.Println(common.GetVersion())
		os.Exit(common.ExitOK)
	}

	if *showJobs {
		fmt.Println(runtime.NumCPU())
		os.Exit(common.ExitOK)
	}

	// A real log file still gets duplicated to stderr on error so a
	// build failure is visible without having to go dig up the file.
	logger, err := common.MakeLogger(*logFile, *logVerbosity, false, *logFile != "" && *logFile != "stderr")
	if err != nil {
		failedStart("bad logger configuration:", err)
	}

	hosts, _, source, err := hostlist.LoadHostList(*distccDir)
	if err != nil {
		// No host list at all just means every job runs locally (spec
		// §4.6's "no hosts available" branch); only a malformed one is
		// worth reporting up front.
		if source != "" {
			fmt.Fprintln(os.Stderr, "distcc: bad host list from", source+":", err)
			os.Exit(common.ExitBadHostSpec)
		}
		hosts = hostlist.HostList{}
	}

	if *showHosts {
		if source != "" {
			fmt.Fprintln(os.Stderr, "# from", source)
		}
		fmt.Print(hostlist.Print(hosts))
		os.Exit(common.ExitOK)
	}

	if *scanIncludes {
		// Distribution of the actual header-scanning pass lives in the
		// include-server bridge (spec §4.12); a bare distcc invocation
		// has nothing to scan without a compile line to analyze.
		fmt.Fprintln(os.Stderr, "distcc: -scan-includes requires a compile command line")
		os.Exit(common.ExitBadArguments)
	}

	argv := os.Args[1:]
	if len(argv) == 0 {
		failedStart("no compiler command given; usage: distcc cc -c file.c -o file.o")
	}

	level := recursionSafeguardLevel()
	incrementSafeguard(level)

	cwd, err := os.Getwd()
	if err != nil {
		failedStart("getwd:", err)
	}

	distccStateDir := *distccDir
	if distccStateDir == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			distccStateDir = home + "/.distcc"
		} else {
			distccStateDir = os.TempDir()
		}
	}
	lockDir := distccStateDir + "/lock"

	opts := client.Options{
		Hosts:                hosts,
		RecursionLevel:       level,
		LockDir:              lockDir,
		ConnectTimeout:       connectTimeout,
		PickHostSleep:        pickHostSleep,
		IOTimeout:            *ioTimeout,
		LocalSlotsCpp:        localSlotsCpp,
		SSHPath:              *sshPath,
		SocksProxyAddr:       socksProxy,
		SaveTemps:            *saveTemps,
		Fallback:             *fallback,
		SkipLocalRetry:       *skipLocalRetry,
		DiscrepancyThreshold: int(*maxDiscrepancy),
		ExcludeFreshFiles:    *excludeFreshFiles,
		IncludeServerSocket:  *includeServerSocket,
		AllowAssemblyInput:   allowAssemblyInput,
		// RewriteCross is left on; RewriteCrossCompiler itself honors
		// DISTCC_NO_REWRITE_CROSS to disable the heuristic wholesale.
		RewriteCross: true,
		Notifier:     discrepancy.NewNotifier(),
		Logger:       logger,
	}

	outcome := client.NewSession(opts, argv, cwd).Run()

	os.Stdout.Write(outcome.Stdout)
	os.Stderr.Write(outcome.Stderr)
	os.Exit(outcome.ExitCode)
}

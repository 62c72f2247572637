// distccd is the daemon binary: it resolves the daemon CLI surface (spec
// §6) combined with an optional static TOML config file, builds the
// internal/server.Options and internal/daemonsrv.Config the accept loop
// needs, and runs until told to stop.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	sdaemon "github.com/coreos/go-systemd/v22/daemon"

	"github.com/opencompile/distcc/internal/common"
	"github.com/opencompile/distcc/internal/daemonsrv"
	"github.com/opencompile/distcc/internal/server"
)

func failedStart(v ...interface{}) {
	fmt.Fprintln(os.Stderr, append([]interface{}{"distccd:"}, v...)...)
	os.Exit(common.ExitGeneralFailure)
}

func main() {
	// -config is read once, ahead of the rest of flag registration, so
	// its values can seed the CmdEnv defaults below: a real -flag or
	// DISTCC_* env var set at invocation time still wins, but an unset
	// one now falls back to the config file instead of the hardcoded
	// default (mirrors miasvanklei-nocc's ParseConfiguration, layered
	// under common's flag/env precedence rather than used standalone).
	cfg, err := ParseConfiguration(peekConfigPath(os.Args[1:]))
	if err != nil {
		failedStart("reading config file:", err)
	}

	showVersion := common.CmdEnvBool("Show version and exit.", false,
		"version", "")

	common.CmdEnvString("Path to a TOML config file layered underneath flags/environment.", "",
		"config", "")

	daemonMode := common.CmdEnvBool("Run as a standalone listening daemon (the default).", true,
		"daemon", "")
	inetdMode := common.CmdEnvBool("Serve exactly one job on the already-accepted connection given\nas stdin/stdout, then exit (for launching via inetd/xinetd).", false,
		"inetd", "")
	noFork := common.CmdEnvBool("Serve one connection at a time on the accept goroutine itself,\nfor debugging; no concurrency cap applies.", false,
		"no-fork", "")

	listenAddr := common.CmdEnvString("Address to bind the listening socket to.", cfg.ListenAddr,
		"listen", "")
	port := common.CmdEnvInt("Port to listen on.", int64(cfg.Port),
		"port", "")
	jobs := common.CmdEnvInt("Maximum concurrent compile jobs; default ncpus+2.", int64(cfg.MaxJobs),
		"jobs", "")

	allowSpec := common.CmdEnvString("Comma-separated CIDR blocks allowed to connect.\nEmpty means accept from anywhere.", strings.Join(cfg.AllowCIDRs, ","),
		"allow", "")

	user := common.CmdEnvString("Drop privileges to this user after binding the listening socket.", cfg.User,
		"user", "")
	pidFile := common.CmdEnvString("Write the daemon's pid to this path.", cfg.PIDFile,
		"pid-file", "")

	logFile := common.CmdEnvString("A filename to log to; \"stderr\" logs to stderr.", cfg.LogFileName,
		"log-file", "")
	logLevel := common.CmdEnvInt("Logger verbosity level for INFO (-1 off, default 0, max 2).", int64(cfg.LogLevel),
		"log-level", "")

	enableTCPInsecure := common.CmdEnvBool("Accept any compiler path over TCP, skipping the DISTCC_CMDLIST/\nlibexec identity check (spec §4.8 step 5). Required for --inetd\nover ssh, since the transport itself is already authenticated.", cfg.EnableTCPInsecure,
		"enable-tcp-insecure", "")
	cmdListPath := common.CmdEnvString("Path to a DISTCC_CMDLIST file mapping accepted compiler names\nto this server's own copies.", cfg.CmdListPath,
		"", "DISTCC_CMDLIST")
	cmdListNumWords := common.CmdEnvInt("Number of trailing path components DISTCC_CMDLIST entries are\nindexed by.", int64(cfg.CmdListNumWords),
		"", "DISTCC_CMDLIST_NUMWORDS")
	jobLifetimeSecs := common.CmdEnvInt("Hard cap, in seconds, on one compile job's wall-clock time;\n0 means no cap.", int64(cfg.JobLifetimeSecs),
		"", "DISTCC_JOB_LIFETIME")
	allowAssemblyInput := common.CmdEnvBool("Allow .s/.S assembly files to be compiled server-side like\nC/C++ sources.", cfg.AllowAssemblyInput,
		"", "")

	common.ParseCmdFlagsCombiningWithEnv()

	if *showVersion {
		fmt.Println(common.GetVersion())
		os.Exit(common.ExitOK)
	}

	logger, err := common.MakeLogger(*logFile, *logLevel, false, true)
	if err != nil {
		failedStart("bad logger configuration:", err)
	}

	var cmdList *server.CmdList
	if *cmdListPath != "" {
		cmdList, err = server.LoadCmdList(*cmdListPath, int(*cmdListNumWords))
		if err != nil {
			failedStart("loading DISTCC_CMDLIST:", err)
		}
	}

	mode := daemonsrv.ModeStandaloneForking
	switch {
	case *inetdMode:
		mode = daemonsrv.ModeInetd
	case *noFork, !*daemonMode:
		mode = daemonsrv.ModeNoFork
	}

	maxJobs := int(*jobs)
	if maxJobs <= 0 {
		maxJobs = runtime.NumCPU() + 2
	}

	daemonCfg := daemonsrv.Config{
		Mode:       mode,
		ListenAddr: *listenAddr,
		Port:       int(*port),
		MaxJobs:    maxJobs,
		AllowCIDRs: splitCommaList(*allowSpec),
		User:       *user,
		PIDFile:    *pidFile,
		ServerOpts: server.Options{
			CmdList:            cmdList,
			EnableTCPInsecure:  *enableTCPInsecure,
			IOTimeout:          time.Duration(*jobLifetimeSecs) * time.Second,
			AllowAssemblyInput: *allowAssemblyInput,
			Logger:             logger,
		},
		Logger: logger,
	}

	if mode != daemonsrv.ModeInetd {
		// SdNotify is a no-op outside a systemd unit (NOTIFY_SOCKET
		// unset); errors are ignored the same way miasvanklei-nocc's
		// nocc-daemon ignores SdNotifyStopping's.
		_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyReady)
		defer func() { _, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyStopping) }()
	}

	if err := daemonsrv.Run(daemonCfg); err != nil {
		failedStart(err)
	}
}

func peekConfigPath(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "-config="):
			return strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

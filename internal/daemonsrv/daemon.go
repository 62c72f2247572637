// Package daemonsrv is the distccd accept/dispatch frame (spec §4.13):
// it owns the listen socket (or the inetd stdin/stdout pair), the
// per-connection concurrency cap, privilege drop, the allowlist check,
// and clean shutdown on SIGTERM/SIGINT -- everything around the single
// job handled by internal/server.HandleConnection.
package daemonsrv

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/opencompile/distcc/internal/common"
	"github.com/opencompile/distcc/internal/server"
)

// Mode selects one of spec §4.13's three operating modes.
type Mode int

const (
	// ModeStandaloneForking is the default: a listen loop handing each
	// connection to its own goroutine, up to MaxJobs concurrently --
	// the Go-idiomatic stand-in for "parent forks a child per request".
	ModeStandaloneForking Mode = iota
	// ModeNoFork serves one connection at a time on the accept
	// goroutine itself, for debugging.
	ModeNoFork
	// ModeInetd treats the process's own stdin/stdout as an
	// already-accepted connection, serves exactly one job, and exits.
	ModeInetd
)

func (m Mode) String() string {
	switch m {
	case ModeStandaloneForking:
		return "standalone"
	case ModeNoFork:
		return "nofork"
	case ModeInetd:
		return "inetd"
	default:
		return "unknown"
	}
}

// Config collects distccd's daemon-frame settings, populated by
// cmd/distccd from flags/env/TOML.
type Config struct {
	Mode Mode

	ListenAddr string
	Port       int
	MaxJobs    int

	AllowCIDRs []string

	User string

	PIDFile string

	ServerOpts server.Options

	Logger *common.LoggerWrapper
}

func (c Config) logf(v ...interface{}) {
	if c.Logger != nil {
		c.Logger.Info(1, v...)
	}
}

func (c Config) errf(v ...interface{}) {
	if c.Logger != nil {
		c.Logger.Error(v...)
	}
}

// Run starts the daemon frame per cfg.Mode and blocks until shutdown
// (SIGTERM/SIGINT in the listening modes, or job completion in inetd
// mode).
func Run(cfg Config) error {
	if cfg.Mode == ModeInetd {
		conn := &stdioConn{in: os.Stdin, out: os.Stdout}
		return server.HandleConnection(conn, cfg.ServerOpts)
	}

	allowed, err := parseCIDRs(cfg.AllowCIDRs)
	if err != nil {
		return fmt.Errorf("daemonsrv: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("daemonsrv: listen %s: %w", addr, err)
	}
	defer listener.Close()

	if cfg.PIDFile != "" {
		if err := writePIDFile(cfg.PIDFile); err != nil {
			return fmt.Errorf("daemonsrv: %w", err)
		}
		defer os.Remove(cfg.PIDFile)
	}

	if cfg.User != "" {
		if err := dropPrivileges(cfg.User); err != nil {
			return fmt.Errorf("daemonsrv: drop privileges: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg.logf("distccd listening on", addr, "mode", cfg.Mode)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	return serveListener(ctx, listener, cfg, allowed)
}

// serveListener runs the accept loop until ctx is done or Accept fails
// for a reason other than the listener having been closed for shutdown.
// Split out from Run so tests can drive it against a listener they
// control without going through signal handling or privilege drop.
func serveListener(ctx context.Context, listener net.Listener, cfg Config, allowed []*net.IPNet) error {
	var wg sync.WaitGroup
	var sem chan struct{}
	if cfg.Mode == ModeStandaloneForking {
		maxJobs := cfg.MaxJobs
		if maxJobs <= 0 {
			maxJobs = 4
		}
		sem = make(chan struct{}, maxJobs)
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			cfg.errf("accept:", err)
			continue
		}

		if allowed != nil && !connAllowed(conn, allowed) {
			cfg.errf("rejecting connection from disallowed address", conn.RemoteAddr())
			conn.Close()
			continue
		}

		switch cfg.Mode {
		case ModeNoFork:
			runOne(cfg, conn)
		default:
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				runOne(cfg, conn)
			}()
		}
	}

	wg.Wait()
	return nil
}

func runOne(cfg Config, conn net.Conn) {
	if err := server.HandleConnection(conn, cfg.ServerOpts); err != nil {
		cfg.errf("session error from", conn.RemoteAddr(), ":", err)
	}
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// stdioConn adapts the process's separate stdin/stdout file descriptors
// to the single io.ReadWriteCloser HandleConnection expects, for inetd
// mode where the already-accepted connection arrives that way.
type stdioConn struct {
	in  *os.File
	out *os.File
}

func (s *stdioConn) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stdioConn) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *stdioConn) Close() error {
	errIn := s.in.Close()
	errOut := s.out.Close()
	if errIn != nil {
		return errIn
	}
	return errOut
}

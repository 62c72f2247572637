package client

import (
	"fmt"
	"io"

	"github.com/opencompile/distcc/internal/hostlist"
	"github.com/opencompile/distcc/internal/transport"
)

// openTransport implements spec §4.6's Transport-open phase: from here
// on, the transport is two file descriptors (possibly aliased) behaving
// as a reliable byte stream, regardless of which branch was taken.
func (s *Session) openTransport(h hostlist.HostDef) (io.ReadWriteCloser, error) {
	switch h.Mode {
	case hostlist.ModeTCP:
		conn, err := transport.DialTCP(h.Hostname, h.Port, s.opts.ConnectTimeout, s.opts.SocksProxyAddr)
		if err != nil {
			return nil, fmt.Errorf("client: connect %s:%d: %w", h.Hostname, h.Port, err)
		}
		return conn, nil
	case hostlist.ModeSSH:
		sshPath := s.opts.SSHPath
		if sshPath == "" {
			sshPath = "ssh"
		}
		conn, err := transport.DialSSH(sshPath, h.User, h.Hostname, s.opts.RemoteDistccd)
		if err != nil {
			return nil, fmt.Errorf("client: ssh to %s: %w", h.Hostname, err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("client: host %q has no remote transport (local)", h.Hostname)
	}
}

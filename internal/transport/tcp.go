// Package transport opens the byte-stream connection to a distccd host,
// either plain TCP or an SSH subprocess (spec §4.6 "Transport open"), with
// an optional SOCKS5 jump for the TCP case.
package transport

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultConnectTimeout is a stock connect timeout for DialTCP callers;
// cmd/distcc passes its own fixed 10-second value instead.
const DefaultConnectTimeout = 30 * time.Second

// DialTCP connects to host:port, optionally via a SOCKS5 proxy listening
// at socksProxyAddr (empty to dial directly). Grounded in
// miasvanklei-nocc's SocksProxyAddr wiring, adapted from grpc's dialer
// hook to a plain net.Conn since this project's transport isn't grpc.
func DialTCP(host string, port int, timeout time.Duration, socksProxyAddr string) (net.Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	if socksProxyAddr == "" {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
		}
		return conn, nil
	}

	dialer, err := proxy.SOCKS5("tcp", socksProxyAddr, nil, &proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("transport: socks5 dialer for %s: %w", socksProxyAddr, err)
	}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s via socks5 %s: %w", addr, socksProxyAddr, err)
	}
	return conn, nil
}

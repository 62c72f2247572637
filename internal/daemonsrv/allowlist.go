package daemonsrv

import (
	"fmt"
	"net"
)

// parseCIDRs parses each --allow value as a CIDR block. An empty input
// returns a nil slice, which connAllowed treats as "no restriction".
func parseCIDRs(specs []string) ([]*net.IPNet, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	nets := make([]*net.IPNet, 0, len(specs))
	for _, spec := range specs {
		_, ipnet, err := net.ParseCIDR(spec)
		if err != nil {
			return nil, fmt.Errorf("daemonsrv: invalid --allow CIDR %q: %w", spec, err)
		}
		nets = append(nets, ipnet)
	}
	return nets, nil
}

// connAllowed reports whether conn's remote address falls inside one of
// allowed's blocks (spec §6's --allow CIDR option, spec §7's access
// denied / exit 113 case).
func connAllowed(conn net.Conn, allowed []*net.IPNet) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, ipnet := range allowed {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

package hostlist

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// ParseOptions carries the global options a hostfile may set (spec §4.2
// GLOBAL rules), applied after the per-host specs are parsed.
type ParseOptions struct {
	Randomize        bool
	LocalSlots       int // --localslots=N, default 4
	LocalSlotsCpp    int // --localslots_cpp=N, default 8
}

const (
	defaultGlobalLocalSlots    = 4
	defaultGlobalLocalSlotsCpp = 8
)

// ParseText parses a full hostfile/env value: whitespace-separated
// hostspecs, '#' comments, and the GLOBAL directives (spec §4.2's
// grammar). A component is classified in this order: '@' present => SSH;
// "localhost" prefix => Local; else TCP (which also covers the
// "oldstyle" TCP form, since the two only differ in where :PORT may
// appear, and this parser accepts it in either position).
func ParseText(text string) (HostList, ParseOptions, error) {
	opts := ParseOptions{LocalSlots: defaultGlobalLocalSlots, LocalSlotsCpp: defaultGlobalLocalSlotsCpp}
	var hosts []HostDef

	for _, rawLine := range strings.Split(text, "\n") {
		line := rawLine
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		for _, field := range strings.Fields(line) {
			switch {
			case field == "--randomize":
				opts.Randomize = true
			case strings.HasPrefix(field, "--localslots="):
				n, err := strconv.Atoi(field[len("--localslots="):])
				if err != nil {
					return HostList{}, ParseOptions{}, fmt.Errorf("hostlist: bad --localslots value in %q: %w", field, err)
				}
				opts.LocalSlots = n
			case strings.HasPrefix(field, "--localslots_cpp="):
				n, err := strconv.Atoi(field[len("--localslots_cpp="):])
				if err != nil {
					return HostList{}, ParseOptions{}, fmt.Errorf("hostlist: bad --localslots_cpp value in %q: %w", field, err)
				}
				opts.LocalSlotsCpp = n
			default:
				host, err := parseHostSpec(field)
				if err != nil {
					return HostList{}, ParseOptions{}, err
				}
				hosts = append(hosts, host)
			}
		}
	}

	if opts.Randomize {
		hosts = randomizeOrder(hosts)
	}

	return HostList{Hosts: hosts}, opts, nil
}

// LoadHostList resolves the host list the way spec §6/§3 describes:
// DISTCC_HOSTS env, else $DISTCC_DIR/hosts, else the user dotfile, else
// the system file.
func LoadHostList(distccDir string) (HostList, ParseOptions, string, error) {
	if env := os.Getenv("DISTCC_HOSTS"); env != "" {
		list, opts, err := ParseText(env)
		return list, opts, "DISTCC_HOSTS", err
	}

	candidates := []string{}
	if distccDir != "" {
		candidates = append(candidates, distccDir+"/hosts")
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home+"/.distcc/hosts")
	}
	candidates = append(candidates, "/etc/distcc/hosts")

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		list, opts, err := ParseText(string(data))
		return list, opts, path, err
	}

	return HostList{}, ParseOptions{}, "", fmt.Errorf("hostlist: no host list found (set DISTCC_HOSTS or provide a hosts file)")
}

func randomizeOrder(hosts []HostDef) []HostDef {
	// Seeded from the pid, per spec §4.2: "just to spread load across
	// clients", not a security-sensitive shuffle.
	r := rand.New(rand.NewSource(int64(os.Getpid())))
	out := make([]HostDef, len(hosts))
	copy(out, hosts)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func parseHostSpec(field string) (HostDef, error) {
	raw := field
	main, optsPart, hasOpts := strings.Cut(field, ",")
	if !hasOpts {
		optsPart = ""
	}

	host := HostDef{Raw: raw, IsUp: true, Port: DefaultTCPPort}

	switch {
	case strings.Contains(main, "@"):
		user, rest, _ := strings.Cut(main, "@")
		host.Mode = ModeSSH
		host.User = user
		if err := parseSSHMain(rest, &host); err != nil {
			return HostDef{}, fmt.Errorf("hostlist: %q: %w", raw, err)
		}

	case main == "localhost" || strings.HasPrefix(main, "localhost/"):
		host.Mode = ModeLocal
		host.Hostname = "localhost"
		host.NSlots = defaultLocalSlots
		if rest, slots, ok := strings.Cut(main, "/"); ok {
			n, err := strconv.Atoi(slots)
			if err != nil || n == 0 {
				return HostDef{}, fmt.Errorf("hostlist: %q: invalid slot count %q", raw, slots)
			}
			host.NSlots = n
			_ = rest
		}

	default:
		host.Mode = ModeTCP
		if err := parseTCPMain(main, &host); err != nil {
			return HostDef{}, fmt.Errorf("hostlist: %q: %w", raw, err)
		}
	}

	if host.Mode != ModeLocal && host.NSlots == 0 {
		host.NSlots = defaultTCPSlots
	}

	if err := applyOptions(&host, optsPart); err != nil {
		return HostDef{}, fmt.Errorf("hostlist: %q: %w", raw, err)
	}
	return host, nil
}

// parseTCPMain handles `HOSTID(:PORT)?(/N)?` in either order (the
// "oldstyle" variant puts /N before :PORT), and bracketed IPv6 literals.
func parseTCPMain(main string, host *HostDef) error {
	rest := main

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return fmt.Errorf("unterminated IPv6 literal in %q", main)
		}
		host.Hostname = rest[:end+1]
		rest = rest[end+1:]
	}

	// Walk the remaining :PORT and /N markers in whatever order they appear.
	for len(rest) > 0 {
		switch rest[0] {
		case ':':
			rest = rest[1:]
			end := indexOfAny(rest, "/")
			portStr := rest
			if end >= 0 {
				portStr = rest[:end]
				rest = rest[end:]
			} else {
				rest = ""
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("invalid port %q", portStr)
			}
			host.Port = port
		case '/':
			rest = rest[1:]
			end := indexOfAny(rest, ":")
			slotStr := rest
			if end >= 0 {
				slotStr = rest[:end]
				rest = rest[end:]
			} else {
				rest = ""
			}
			n, err := strconv.Atoi(slotStr)
			if err != nil || n == 0 {
				return fmt.Errorf("invalid slot count %q", slotStr)
			}
			host.NSlots = n
		default:
			if host.Hostname != "" {
				return fmt.Errorf("unexpected trailing text %q", rest)
			}
			end := indexOfAny(rest, ":/")
			if end < 0 {
				host.Hostname = rest
				rest = ""
			} else {
				host.Hostname = rest[:end]
				rest = rest[end:]
			}
		}
	}

	if host.Hostname == "" {
		return fmt.Errorf("empty hostname")
	}
	return nil
}

// parseSSHMain handles `HOSTID(/N)?(:CMD)?` after the optional "user@" has
// already been stripped.
func parseSSHMain(rest string, host *HostDef) error {
	main := rest
	if idx := strings.IndexByte(main, ':'); idx >= 0 {
		host.SSHCommand = main[idx+1:]
		main = main[:idx]
	}
	if name, slots, ok := strings.Cut(main, "/"); ok {
		n, err := strconv.Atoi(slots)
		if err != nil || n == 0 {
			return fmt.Errorf("invalid slot count %q", slots)
		}
		host.NSlots = n
		main = name
	}
	if main == "" {
		return fmt.Errorf("empty ssh hostname")
	}
	host.Hostname = main
	return nil
}

func indexOfAny(s, chars string) int {
	return strings.IndexAny(s, chars)
}

// applyOptions parses the comma-separated OPT list (spec §4.2) and derives
// protover from the accumulated (compression, cppWhere) features once all
// options are consumed.
func applyOptions(host *HostDef, optsPart string) error {
	sawLzo := false
	sawCpp := false
	sawDown := false

	if optsPart != "" {
		for _, opt := range strings.Split(optsPart, ",") {
			switch {
			case opt == "lzo":
				sawLzo = true
			case opt == "cpp":
				sawCpp = true
			case opt == "down":
				sawDown = true
			case opt == "auth" || strings.HasPrefix(opt, "auth="):
				// auth is handled by the (out-of-scope) GSS-API collaborator; accepted but inert.
			case opt == "":
				// tolerate a trailing comma
			default:
				return fmt.Errorf("unknown host option %q", opt)
			}
		}
	}

	if sawCpp && !sawLzo {
		return fmt.Errorf("cpp option requires lzo")
	}

	if sawLzo {
		host.Compression = CompressionLZO1X
	} else {
		host.Compression = CompressionNone
	}
	if sawCpp {
		host.CppWhere = CppServer
	} else {
		host.CppWhere = CppClient
	}

	protover := ProtoverOf(host.Compression, host.CppWhere)
	if protover == 0 {
		return fmt.Errorf("invalid (compression, cpp_where) combination: (%v, server-side cpp without compression is forbidden)", host.Compression)
	}
	host.Protover = protover

	host.IsUp = !sawDown
	return nil
}

// Print renders a HostList back to hostfile text, used by ParseText's
// round-trip test (spec §8 invariant 3) and by `--show-hosts`.
func Print(list HostList) string {
	var b strings.Builder
	w := bufio.NewWriter(&b)
	for i, h := range list.Hosts {
		if i > 0 {
			fmt.Fprint(w, " ")
		}
		fmt.Fprint(w, hostSpecString(h))
	}
	_ = w.Flush()
	return b.String()
}

func hostSpecString(h HostDef) string {
	var b strings.Builder
	switch h.Mode {
	case ModeLocal:
		b.WriteString("localhost")
		if h.NSlots > 0 {
			fmt.Fprintf(&b, "/%d", h.NSlots)
		}
	case ModeSSH:
		if h.User != "" {
			fmt.Fprintf(&b, "%s@", h.User)
		}
		b.WriteString(h.Hostname)
		if h.NSlots > 0 {
			fmt.Fprintf(&b, "/%d", h.NSlots)
		}
		if h.SSHCommand != "" {
			fmt.Fprintf(&b, ":%s", h.SSHCommand)
		}
	case ModeTCP:
		b.WriteString(h.Hostname)
		if h.Port != DefaultTCPPort {
			fmt.Fprintf(&b, ":%d", h.Port)
		}
		if h.NSlots > 0 {
			fmt.Fprintf(&b, "/%d", h.NSlots)
		}
	}
	if h.Compression == CompressionLZO1X {
		b.WriteString(",lzo")
	}
	if h.CppWhere == CppServer {
		b.WriteString(",cpp")
	}
	if !h.IsUp {
		b.WriteString(",down")
	}
	return b.String()
}

package hostlist

import "testing"

func TestParseLocalhost(t *testing.T) {
	list, _, err := ParseText("localhost/4")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Hosts) != 1 {
		t.Fatalf("got %d hosts", len(list.Hosts))
	}
	h := list.Hosts[0]
	if h.Mode != ModeLocal || h.NSlots != 4 {
		t.Fatalf("got %+v", h)
	}
}

func TestParseLocalhostDefaultSlots(t *testing.T) {
	list, _, err := ParseText("localhost")
	if err != nil {
		t.Fatal(err)
	}
	if list.Hosts[0].NSlots != defaultLocalSlots {
		t.Fatalf("got %d slots, want %d", list.Hosts[0].NSlots, defaultLocalSlots)
	}
}

func TestParseTCPWithLzoAndPort(t *testing.T) {
	list, _, err := ParseText("build01:4000/8,lzo")
	if err != nil {
		t.Fatal(err)
	}
	h := list.Hosts[0]
	if h.Mode != ModeTCP || h.Hostname != "build01" || h.Port != 4000 || h.NSlots != 8 {
		t.Fatalf("got %+v", h)
	}
	if h.Compression != CompressionLZO1X || h.Protover != 2 {
		t.Fatalf("got compression=%v protover=%d", h.Compression, h.Protover)
	}
}

func TestParseTCPDefaultPort(t *testing.T) {
	list, _, err := ParseText("build01")
	if err != nil {
		t.Fatal(err)
	}
	if list.Hosts[0].Port != DefaultTCPPort {
		t.Fatalf("got port %d", list.Hosts[0].Port)
	}
	if list.Hosts[0].Protover != 1 {
		t.Fatalf("got protover %d, want 1 (no compression, client cpp)", list.Hosts[0].Protover)
	}
}

func TestParseCppRequiresLzo(t *testing.T) {
	_, _, err := ParseText("build01,cpp")
	if err == nil {
		t.Fatal("expected an error: cpp without lzo is forbidden")
	}
}

func TestParseCppWithLzo(t *testing.T) {
	list, _, err := ParseText("build01,lzo,cpp")
	if err != nil {
		t.Fatal(err)
	}
	h := list.Hosts[0]
	if h.CppWhere != CppServer || h.Protover != 3 {
		t.Fatalf("got %+v", h)
	}
}

func TestParseSSH(t *testing.T) {
	list, _, err := ParseText("alice@build02/6:/usr/bin/distccd")
	if err != nil {
		t.Fatal(err)
	}
	h := list.Hosts[0]
	if h.Mode != ModeSSH || h.User != "alice" || h.Hostname != "build02" || h.NSlots != 6 || h.SSHCommand != "/usr/bin/distccd" {
		t.Fatalf("got %+v", h)
	}
}

func TestParseIPv6(t *testing.T) {
	list, _, err := ParseText("[::1]:4000/2,lzo")
	if err != nil {
		t.Fatal(err)
	}
	h := list.Hosts[0]
	if h.Hostname != "[::1]" || h.Port != 4000 {
		t.Fatalf("got %+v", h)
	}
}

func TestParseDownHostFiltered(t *testing.T) {
	list, _, err := ParseText("build01,down build02")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Hosts) != 2 {
		t.Fatalf("expected both hosts kept for hashing, got %d", len(list.Hosts))
	}
	if list.Hosts[0].IsUp {
		t.Fatal("build01 should be marked down")
	}
	up := list.Up()
	if len(up.Hosts) != 1 || up.Hosts[0].Hostname != "build02" {
		t.Fatalf("got %+v", up)
	}
}

func TestParseGlobalOptions(t *testing.T) {
	list, opts, err := ParseText("build01 build02 --randomize --localslots=10 --localslots_cpp=20")
	if err != nil {
		t.Fatal(err)
	}
	if !opts.Randomize || opts.LocalSlots != 10 || opts.LocalSlotsCpp != 20 {
		t.Fatalf("got %+v", opts)
	}
	if len(list.Hosts) != 2 {
		t.Fatalf("got %d hosts", len(list.Hosts))
	}
}

func TestParseComments(t *testing.T) {
	list, _, err := ParseText("# a comment\nbuild01 # trailing comment\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Hosts) != 1 || list.Hosts[0].Hostname != "build01" {
		t.Fatalf("got %+v", list.Hosts)
	}
}

func TestParsePrintRoundTrip(t *testing.T) {
	texts := []string{
		"localhost/4",
		"build01:4000/8,lzo",
		"build01,lzo,cpp",
		"alice@build02/6",
	}
	for _, text := range texts {
		list, _, err := ParseText(text)
		if err != nil {
			t.Fatalf("%q: %v", text, err)
		}
		printed := Print(list)
		list2, _, err := ParseText(printed)
		if err != nil {
			t.Fatalf("re-parsing %q (from %q): %v", printed, text, err)
		}
		h1, h2 := list.Hosts[0], list2.Hosts[0]
		h1.Raw, h2.Raw = "", "" // Raw is the literal source text, not semantic state
		if len(list2.Hosts) != len(list.Hosts) || h1 != h2 {
			t.Fatalf("round trip mismatch for %q: %+v vs %+v", text, h1, h2)
		}
	}
}

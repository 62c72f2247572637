package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencompile/distcc/internal/wire"
)

// fakeCompiler writes a small shell script that stands in for a real
// compiler in tests: it ignores its arguments, prints a marker to
// stdout, and exits 0.
func fakeCompiler(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHandleConnectionClientCpp(t *testing.T) {
	cc := fakeCompiler(t, "echo build-ok\n")
	clientSide, serverSide := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- HandleConnection(serverSide, Options{EnableTCPInsecure: true, IOTimeout: 5 * time.Second})
	}()

	clientStream := wire.NewStream(clientSide, false, nil)
	if err := clientStream.WriteInt(wire.TagDIST, 1); err != nil {
		t.Fatal(err)
	}
	argv := []string{cc, "-c", "in.c"}
	if err := clientStream.WriteARGV(argv); err != nil {
		t.Fatal(err)
	}
	if err := clientStream.WriteBody(wire.TagDOTI, []byte("int main(){return 0;}\n")); err != nil {
		t.Fatal(err)
	}

	if _, err := clientStream.ReadInt(wire.TagDONE); err != nil {
		t.Fatal(err)
	}
	stat, err := clientStream.ReadInt(wire.TagSTAT)
	if err != nil {
		t.Fatal(err)
	}
	if stat != 0 {
		t.Fatalf("STAT = %d, want 0", stat)
	}
	if _, err := clientStream.ReadBody(wire.TagSERR); err != nil {
		t.Fatal(err)
	}
	sout, err := clientStream.ReadBody(wire.TagSOUT)
	if err != nil {
		t.Fatal(err)
	}
	if string(sout) != "build-ok\n" {
		t.Fatalf("SOUT = %q, want %q", sout, "build-ok\n")
	}
	if _, err := clientStream.ReadBody(wire.TagDOTO); err != nil {
		t.Fatal(err)
	}
	clientSide.Close()

	if err := <-done; err != nil {
		t.Fatalf("HandleConnection: %v", err)
	}
}

func TestHandleConnectionServerCpp(t *testing.T) {
	cc := fakeCompiler(t, "echo compiled-remote\n")
	clientSide, serverSide := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- HandleConnection(serverSide, Options{EnableTCPInsecure: true, IOTimeout: 5 * time.Second})
	}()

	clientStream := wire.NewStream(clientSide, true, nil)
	if err := clientStream.WriteInt(wire.TagDIST, 3); err != nil {
		t.Fatal(err)
	}
	if err := clientStream.WriteBody(wire.TagCDIR, []byte("/home/dev/project")); err != nil {
		t.Fatal(err)
	}
	argv := []string{cc, "-c", "in.c"}
	if err := clientStream.WriteARGV(argv); err != nil {
		t.Fatal(err)
	}
	if err := clientStream.WriteInt(wire.TagNFIL, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := clientStream.ReadInt(wire.TagDONE); err != nil {
		t.Fatal(err)
	}
	stat, err := clientStream.ReadInt(wire.TagSTAT)
	if err != nil {
		t.Fatal(err)
	}
	if stat != 0 {
		t.Fatalf("STAT = %d, want 0", stat)
	}
	if _, err := clientStream.ReadBody(wire.TagSERR); err != nil {
		t.Fatal(err)
	}
	sout, err := clientStream.ReadBody(wire.TagSOUT)
	if err != nil {
		t.Fatal(err)
	}
	if string(sout) != "compiled-remote\n" {
		t.Fatalf("SOUT = %q, want %q", sout, "compiled-remote\n")
	}
	if _, err := clientStream.ReadBody(wire.TagDOTO); err != nil {
		t.Fatal(err)
	}
	if _, err := clientStream.ReadBody(wire.TagDOTD); err != nil {
		t.Fatal(err)
	}
	clientSide.Close()

	if err := <-done; err != nil {
		t.Fatalf("HandleConnection: %v", err)
	}
}

func TestHandleConnectionRejectsUnsafeOption(t *testing.T) {
	cc := fakeCompiler(t, "echo should-not-run\n")
	clientSide, serverSide := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- HandleConnection(serverSide, Options{EnableTCPInsecure: true, IOTimeout: 5 * time.Second})
	}()

	clientStream := wire.NewStream(clientSide, false, nil)
	if err := clientStream.WriteInt(wire.TagDIST, 1); err != nil {
		t.Fatal(err)
	}
	argv := []string{cc, "-c", "-fplugin=evil.so", "in.c"}
	if err := clientStream.WriteARGV(argv); err != nil {
		t.Fatal(err)
	}
	if err := clientStream.WriteBody(wire.TagDOTI, []byte("int main(){return 0;}\n")); err != nil {
		t.Fatal(err)
	}

	if _, err := clientStream.ReadInt(wire.TagDONE); err != nil {
		t.Fatal(err)
	}
	stat, err := clientStream.ReadInt(wire.TagSTAT)
	if err != nil {
		t.Fatal(err)
	}
	if stat == 0 {
		t.Fatal("expected a nonzero STAT for a rejected unsafe option")
	}
	serr, err := clientStream.ReadBody(wire.TagSERR)
	if err != nil {
		t.Fatal(err)
	}
	if len(serr) == 0 {
		t.Fatal("expected an explanatory SERR body")
	}
	if _, err := clientStream.ReadBody(wire.TagSOUT); err != nil {
		t.Fatal(err)
	}
	if _, err := clientStream.ReadBody(wire.TagDOTO); err != nil {
		t.Fatal(err)
	}
	clientSide.Close()

	if err := <-done; err != nil {
		t.Fatalf("HandleConnection: %v", err)
	}
}

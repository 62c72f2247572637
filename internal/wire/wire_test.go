package wire

import (
	"bytes"
	"testing"

	"github.com/opencompile/distcc/internal/common"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeader(&buf, TagDIST, 3); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != headerLen {
		t.Fatalf("header length = %d, want %d", buf.Len(), headerLen)
	}
	tag, value, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagDIST || value != 3 {
		t.Fatalf("got (%q, %d), want (DIST, 3)", tag, value)
	}
}

func TestExpectHeaderMismatch(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteHeader(&buf, TagDONE, 1)
	_, err := ExpectHeader(&buf, TagDIST)
	var perr *ProtocolError
	if err == nil {
		t.Fatal("expected a protocol error")
	}
	if !asProtocolError(err, &perr) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}

func asProtocolError(err error, target **ProtocolError) bool {
	if pe, ok := err.(*ProtocolError); ok {
		*target = pe
		return true
	}
	return false
}

func TestStreamBodyRoundTripUncompressed(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, false, nil)

	if err := s.WriteBody(TagARGV, []byte("hello.cpp")); err != nil {
		t.Fatal(err)
	}
	body, err := s.ReadBody(TagARGV)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "hello.cpp" {
		t.Fatalf("got %q", body)
	}
}

func TestStreamBodyRoundTripCompressed(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, true, nil)

	payload := bytes.Repeat([]byte("int main() { return 0; }\n"), 200)
	if err := s.WriteBody(TagDOTI, payload); err != nil {
		t.Fatal(err)
	}
	body, err := s.ReadBody(TagDOTI)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(body), len(payload))
	}
}

func TestStreamARGVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, false, nil)
	argv := []string{"g++", "-c", "-o", "hello.o", "hello.cpp"}

	if err := s.WriteARGV(argv); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadARGV()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(argv) {
		t.Fatalf("got %d args, want %d", len(got), len(argv))
	}
	for i := range argv {
		if got[i] != argv[i] {
			t.Fatalf("arg %d: got %q want %q", i, got[i], argv[i])
		}
	}
}

func TestReadBodyEitherPicksWhicheverTagArrived(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, false, nil)

	if err := s.WriteBody(TagLINK, []byte("../include/real.h")); err != nil {
		t.Fatal(err)
	}
	tag, body, err := s.ReadBodyEither(TagFILE, TagLINK)
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagLINK || string(body) != "../include/real.h" {
		t.Fatalf("got (%q, %q)", tag, body)
	}
}

func TestReadBodyEitherRejectsUnrelatedTag(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, false, nil)
	s.WriteBody(TagSOUT, []byte("x"))

	if _, _, err := s.ReadBodyEither(TagFILE, TagLINK); err == nil {
		t.Fatal("expected a protocol error for an unrelated tag")
	}
}

func TestZeroLengthBodyMeansNoFile(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf, false, nil)
	if err := s.WriteBody(TagDOTO, nil); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := dir + "/out.o"
	n, err := s.ReadBodyToFile(TagDOTO, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 bytes written, got %d", n)
	}
	if common.FileExists(path) {
		t.Fatalf("zero-length DOTO must not create %s", path)
	}
}

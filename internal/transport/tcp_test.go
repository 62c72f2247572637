package transport

import (
	"net"
	"testing"
	"time"
)

func TestDialTCPConnectsToListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	conn, err := DialTCP("127.0.0.1", addr.Port, time.Second, "")
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	<-accepted
}

func TestDialTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // nothing listening now

	if _, err := DialTCP("127.0.0.1", port, time.Second, ""); err == nil {
		t.Fatal("expected a connection error")
	}
}

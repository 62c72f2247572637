package client

import (
	"testing"
	"time"

	"github.com/opencompile/distcc/internal/hostlist"
	"github.com/opencompile/distcc/internal/lockfile"
)

func TestPickHostReturnsErrWhenNoHostsUp(t *testing.T) {
	s := &Session{opts: Options{Hosts: hostlist.HostList{}}}
	if _, err := s.pickHost(); err != ErrNoHostsAvailable {
		t.Fatalf("got %v, want ErrNoHostsAvailable", err)
	}
}

func TestPickHostAcquiresFirstFreeSlot(t *testing.T) {
	dir := t.TempDir()
	host := hostlist.HostDef{Mode: hostlist.ModeTCP, Hostname: "build01", IsUp: true, NSlots: 2}
	s := &Session{opts: Options{
		Hosts:         hostlist.HostList{Hosts: []hostlist.HostDef{host}},
		LockDir:       dir,
		PickHostSleep: time.Millisecond,
	}}

	picked, err := s.pickHost()
	if err != nil {
		t.Fatalf("pickHost: %v", err)
	}
	if picked.host.Hostname != "build01" {
		t.Fatalf("picked host = %q, want build01", picked.host.Hostname)
	}
	defer picked.slot.Release()

	// The only other slot (index 1) should still be free.
	path := lockfile.SlotPath(dir, purposeCompile, "build01", 1)
	lock, err := lockfile.TryAcquire(path)
	if err != nil {
		t.Fatalf("expected slot 1 to be free: %v", err)
	}
	lock.Release()
}

func TestPickHostSkipsHostsInBackoff(t *testing.T) {
	dir := t.TempDir()
	disliked := hostlist.HostDef{Mode: hostlist.ModeTCP, Hostname: "disliked", IsUp: true, NSlots: 1}
	healthy := hostlist.HostDef{Mode: hostlist.ModeTCP, Hostname: "healthy", IsUp: true, NSlots: 1}

	if err := lockfile.MarkTimefile(dir, purposeCompile, "disliked"); err != nil {
		t.Fatalf("MarkTimefile: %v", err)
	}

	s := &Session{opts: Options{
		Hosts:         hostlist.HostList{Hosts: []hostlist.HostDef{disliked, healthy}},
		LockDir:       dir,
		PickHostSleep: time.Millisecond,
	}}

	picked, err := s.pickHost()
	if err != nil {
		t.Fatalf("pickHost: %v", err)
	}
	if picked.host.Hostname != "healthy" {
		t.Fatalf("picked host = %q, want healthy (disliked host should be skipped)", picked.host.Hostname)
	}
	picked.slot.Release()
}

func TestAcquireLocalCPPSlotRespectsCount(t *testing.T) {
	dir := t.TempDir()
	s := &Session{opts: Options{LockDir: dir, LocalSlotsCpp: 1, PickHostSleep: time.Millisecond}}

	slot, err := s.acquireLocalCPPSlot()
	if err != nil {
		t.Fatalf("acquireLocalCPPSlot: %v", err)
	}
	defer slot.Release()

	path := lockfile.SlotPath(dir, purposeLocalCPP, "", 0)
	if _, err := lockfile.TryAcquire(path); err != lockfile.ErrBusy {
		t.Fatalf("got %v, want ErrBusy (only slot should be held)", err)
	}
}

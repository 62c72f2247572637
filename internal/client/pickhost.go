package client

import (
	"errors"
	"time"

	"github.com/opencompile/distcc/internal/hostlist"
	"github.com/opencompile/distcc/internal/lockfile"
)

// defaultPickHostSleep is the non-blocking retry interval when every
// offered slot index is currently held (spec §4.6: "sleep 1000 ms
// (overridable) and retry").
const defaultPickHostSleep = 1000 * time.Millisecond

const maxSlotIndex = 10000

// purposeCompile names the slot lock used for the compile job itself,
// distinguishing it from purposeLocalCPP's separate local-cpp guard
// slot (spec §4.6: "Lock order is strict: remote lock first, local lock
// second").
const purposeCompile = "lock"
const purposeLocalCPP = "cpp"

// ErrNoHostsAvailable means every host in the list is marked down or
// offers zero slots -- there is nothing to wait for.
var ErrNoHostsAvailable = errors.New("client: no hosts available")

// pickedHost is the outcome of a successful PickHost round: the winning
// host and the lock now held on its slot.
type pickedHost struct {
	host hostlist.HostDef
	slot *lockfile.SlotLock
}

// pickHost implements spec §4.6's Pick-host phase: loop over slot indices
// 0..10000, and for each index, try every still-up host offering that
// slot; the first non-blocking lock acquisition wins. If an entire pass
// over every offered slot fails, sleep and restart from slot 0.
func (s *Session) pickHost() (pickedHost, error) {
	hosts := s.opts.Hosts.Up().Hosts
	offered := false
	for _, h := range hosts {
		if h.NSlots > 0 {
			offered = true
			break
		}
	}
	if !offered {
		return pickedHost{}, ErrNoHostsAvailable
	}

	sleep := s.opts.PickHostSleep
	if sleep <= 0 {
		sleep = defaultPickHostSleep
	}

	for {
		for slotIdx := 0; slotIdx < maxSlotIndex; slotIdx++ {
			for _, h := range hosts {
				if slotIdx >= h.NSlots {
					continue
				}
				if inBackoff, _ := lockfile.InBackoff(s.opts.LockDir, purposeCompile, h.Hostname, lockfile.BackoffPeriod()); inBackoff {
					continue
				}
				path := lockfile.SlotPath(s.opts.LockDir, purposeCompile, h.Hostname, slotIdx)
				lock, err := lockfile.TryAcquire(path)
				if err != nil {
					continue
				}
				return pickedHost{host: h, slot: lock}, nil
			}
		}
		time.Sleep(sleep)
	}
}

const defaultLocalSlotsCpp = 8

// acquireLocalCPPSlot blocks until one of the localslots_cpp slots is
// available, per spec §4.6's local-preprocessing guard: taken only after
// the remote (or local-compile) slot is already held, to bound the
// number of concurrent local preprocesses regardless of how many remote
// slots are in flight.
func (s *Session) acquireLocalCPPSlot() (*lockfile.SlotLock, error) {
	n := s.opts.LocalSlotsCpp
	if n <= 0 {
		n = defaultLocalSlotsCpp
	}
	sleep := s.opts.PickHostSleep
	if sleep <= 0 {
		sleep = defaultPickHostSleep
	}

	for {
		for slotIdx := 0; slotIdx < n; slotIdx++ {
			path := lockfile.SlotPath(s.opts.LockDir, purposeLocalCPP, "", slotIdx)
			lock, err := lockfile.TryAcquire(path)
			if err != nil {
				continue
			}
			return lock, nil
		}
		time.Sleep(sleep)
	}
}

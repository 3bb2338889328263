//go:build !linux

package wait

import (
	"sync"
	"time"
)

// wakeSignal is broadcast by wake() for same-process low-latency wakeups.
// Cross-process wakeups on non-Linux platforms fall back to the poll
// interval below, since there is no portable cross-process futex
// equivalent in the standard library or anywhere in the example pack.
var (
	regMu sync.Mutex
	reg   = map[*uint32]chan struct{}{}
)

const pollInterval = 2 * time.Millisecond

func signalFor(addr Addr32) chan struct{} {
	regMu.Lock()
	defer regMu.Unlock()
	c, ok := reg[addr.ptr]
	if !ok {
		c = make(chan struct{})
		reg[addr.ptr] = c
	}
	return c
}

// blockFor sleeps for at most min(pollInterval, timeout) or until a
// same-process wake() fires, then returns whether the value changed.
func blockFor(addr Addr32, expected uint32, timeout time.Duration) bool {
	wait := pollInterval
	if timeout != forever && timeout < wait {
		wait = timeout
	}
	select {
	case <-signalFor(addr):
	case <-time.After(wait):
	}
	return addr.Load() != expected
}

func wake(addr Addr32, n int) {
	regMu.Lock()
	c, ok := reg[addr.ptr]
	if ok {
		delete(reg, addr.ptr)
	}
	regMu.Unlock()
	if ok {
		close(c)
	}
}

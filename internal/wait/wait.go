// Package wait implements the futex-like wait/wake primitive MXL uses to
// park readers on a flow's syncCounter without busy-polling.
package wait

import "time"

// Addr32 is a 32-bit aligned memory cell shared across processes. Callers
// obtain one by pointing it at a field inside an mmap'd shared-memory
// segment (see internal/shm); the zero value is not usable.
type Addr32 struct {
	ptr *uint32
}

// NewAddr32 wraps a pointer to a 32-bit aligned shared-memory cell. The
// caller is responsible for the cell's alignment and lifetime.
func NewAddr32(ptr *uint32) Addr32 {
	return Addr32{ptr: ptr}
}

// Load atomically reads the current value.
func (a Addr32) Load() uint32 {
	return loadAcquire(a.ptr)
}

// WaitUntilChanged blocks while *addr == expected, until either the value
// changes or deadline elapses. It returns true if the value changed before
// the deadline. A stale snapshot (expected already different) returns true
// immediately without waiting. Spurious wakeups restart the check
// internally; signals never surface to the caller.
func WaitUntilChanged(addr Addr32, expected uint32, deadline time.Time) bool {
	if addr.Load() != expected {
		return true
	}
	if deadline.IsZero() {
		return waitBlocking(addr, expected)
	}
	return waitUntil(addr, expected, deadline)
}

// WakeOne wakes at most one waiter parked on addr.
func WakeOne(addr Addr32) { wake(addr, 1) }

// WakeAll wakes every waiter parked on addr.
func WakeAll(addr Addr32) { wake(addr, maxWake) }

const maxWake = 1<<31 - 1

func waitUntil(addr Addr32, expected uint32, deadline time.Time) bool {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return addr.Load() != expected
		}
		if addr.Load() != expected {
			return true
		}
		changed := blockFor(addr, expected, remaining)
		if changed {
			return true
		}
		if !time.Now().Before(deadline) {
			return addr.Load() != expected
		}
	}
}

func waitBlocking(addr Addr32, expected uint32) bool {
	for addr.Load() == expected {
		if blockFor(addr, expected, forever) {
			return true
		}
	}
	return true
}

const forever = 1<<63 - 1

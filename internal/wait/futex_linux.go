//go:build linux

package wait

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// blockFor parks the calling goroutine on addr via the Linux futex(2)
// FUTEX_WAIT operation until either the cell's value changes, timeout
// elapses, or the wait is interrupted by a signal (retried transparently).
// It returns true once the value is observed to differ from expected.
func blockFor(addr Addr32, expected uint32, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		var ts *unix.Timespec
		if timeout != forever {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return addr.Load() != expected
			}
			ts = &unix.Timespec{
				Sec:  int64(remaining / time.Second),
				Nsec: int64(remaining % time.Second),
			}
		}

		_, _, errno := unix.Syscall6(
			unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr.ptr)),
			uintptr(unix.FUTEX_WAIT),
			uintptr(expected),
			uintptr(unsafe.Pointer(ts)),
			0, 0,
		)

		switch errno {
		case 0:
			// Woken; caller re-checks the value.
			return addr.Load() != expected
		case unix.EAGAIN:
			// *addr already != expected by the time the kernel checked.
			return addr.Load() != expected
		case unix.EINTR:
			continue
		case unix.ETIMEDOUT:
			return addr.Load() != expected
		default:
			return addr.Load() != expected
		}
	}
}

func wake(addr Addr32, n int) {
	unix.Syscall(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr.ptr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(n),
	)
}

//go:build linux

package rational

import "golang.org/x/sys/unix"

// CurrentTimeTAI returns the current time as signed nanoseconds on the TAI
// epoch (SMPTE ST 2059), read directly from CLOCK_TAI where the kernel
// maintains it.
func CurrentTimeTAI() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_TAI, &ts); err != nil {
		return realtimeWithLeapOffset()
	}
	return ts.Sec*nanosPerSecond + int64(ts.Nsec)
}

func realtimeWithLeapOffset() int64 {
	var ts unix.Timespec
	unix.ClockGettime(unix.CLOCK_REALTIME, &ts)
	return (ts.Sec+LeapSecondOffset)*nanosPerSecond + int64(ts.Nsec)
}

//go:build !linux

package rational

import "time"

// CurrentTimeTAI returns the current time as signed nanoseconds on the TAI
// epoch. Platforms without CLOCK_TAI offset realtime by the compile-time
// leap-second constant (spec §4.1, Open Question #3).
func CurrentTimeTAI() int64 {
	return time.Now().UnixNano() + LeapSecondOffset*nanosPerSecond
}

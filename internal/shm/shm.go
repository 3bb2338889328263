// Package shm implements the shared-memory segment primitive: create or
// open a file, size it, mmap it, and hold an advisory flock that decides
// liveness and deletion rights (spec §4.3).
package shm

// LockState describes the advisory flock currently held on a Segment.
type LockState int

const (
	// LockNone means no flock is held (read-only open).
	LockNone LockState = iota
	// LockShared is held by regular read-write participants.
	LockShared
	// LockExclusive is held transiently by the creator during
	// initialization and by makeExclusive() callers deciding whether to
	// delete the flow.
	LockExclusive
)

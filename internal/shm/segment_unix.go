//go:build linux || darwin

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Segment is a memory-mapped, advisory-locked file shared between
// cooperating processes. Only the creator (CreateExclusive) is allowed to
// run in-place construction of the header, since only it is guaranteed to
// observe zero-initialized memory.
type Segment struct {
	file  *os.File
	data  []byte
	lock  LockState
	inode uint64
}

// CreateExclusive creates path with O_EXCL|O_CREAT, sizes it to size bytes
// via ftruncate, mmaps it PROT_READ|PROT_WRITE, and holds an exclusive
// flock for the caller to populate the header under. Call Downgrade once
// the segment is fully populated.
func CreateExclusive(path string, size int) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating shared-memory segment %s: %w", path, err)
	}

	s, err := finishOpen(f, size, true, unix.LOCK_EX)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return s, nil
}

// OpenReadWrite opens an existing segment, maps it PROT_READ|PROT_WRITE,
// and acquires a shared flock.
func OpenReadWrite(path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening shared-memory segment %s: %w", path, err)
	}
	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s, err := finishOpen(f, size, true, unix.LOCK_SH)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens an existing segment, maps it PROT_READ only, and
// acquires no flock.
func OpenReadOnly(path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening shared-memory segment %s: %w", path, err)
	}
	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s, err := finishOpen(f, size, false, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// CreatePlain creates path with O_EXCL|O_CREAT, sizes it to size bytes, and
// maps it PROT_READ|PROT_WRITE without taking a flock. Used for grain and
// channel files, whose liveness is governed entirely by the flock on the
// flow's "data" segment.
func CreatePlain(path string, size int) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating shared-memory segment %s: %w", path, err)
	}
	s, err := finishOpen(f, size, true, 0)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return s, nil
}

// OpenPlain opens an existing path read-write and maps it without taking a
// flock.
func OpenPlain(path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening shared-memory segment %s: %w", path, err)
	}
	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s, err := finishOpen(f, size, true, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// OpenPlainReadOnly opens an existing path read-only and maps it
// PROT_READ, without taking a flock.
func OpenPlainReadOnly(path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening shared-memory segment %s: %w", path, err)
	}
	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s, err := finishOpen(f, size, false, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func fileSize(f *os.File) (int, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	return int(fi.Size()), nil
}

func finishOpen(f *os.File, size int, writable bool, lockOp int) (*Segment, error) {
	if size > 0 {
		if writable {
			if err := unix.Ftruncate(int(f.Fd()), int64(size)); err != nil {
				return nil, fmt.Errorf("ftruncate: %w", err)
			}
		}
	}

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	var lock LockState
	if lockOp != 0 {
		if err := unix.Flock(int(f.Fd()), lockOp); err != nil {
			unix.Munmap(data)
			return nil, fmt.Errorf("flock: %w", err)
		}
		if lockOp == unix.LOCK_EX {
			lock = LockExclusive
		} else {
			lock = LockShared
		}
	}

	var stat unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &stat); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("fstat: %w", err)
	}

	return &Segment{file: f, data: data, lock: lock, inode: uint64(stat.Ino)}, nil
}

// Bytes returns the mapped memory. The returned slice is valid until Close.
func (s *Segment) Bytes() []byte { return s.data }

// Inode returns the inode number of the underlying file as observed at
// open/create time.
func (s *Segment) Inode() uint64 { return s.inode }

// IsExclusive reports the current lock state.
func (s *Segment) IsExclusive() bool { return s.lock == LockExclusive }

// Downgrade converts an exclusive lock to a shared one. Used by the
// creator once header initialization is complete.
func (s *Segment) Downgrade() error {
	if s.lock != LockExclusive {
		return nil
	}
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_SH); err != nil {
		return fmt.Errorf("downgrading lock: %w", err)
	}
	s.lock = LockShared
	return nil
}

// MakeExclusive non-blockingly attempts to upgrade a shared lock to
// exclusive. It succeeds (returns true) iff no other process holds a
// shared lock on the same file — the handshake used to decide who may
// delete the flow.
func (s *Segment) MakeExclusive() (bool, error) {
	if s.lock == LockExclusive {
		return true, nil
	}
	err := unix.Flock(int(s.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
			return false, nil
		}
		return false, fmt.Errorf("flock upgrade: %w", err)
	}
	s.lock = LockExclusive
	return true, nil
}

// CurrentInode returns the inode currently backing path, used by readers
// to detect flow recreation (a new inode implies FlowInvalid).
func CurrentInode(path string) (uint64, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Ino), nil
}

// Touch updates path's access and modification timestamps — the signal
// readers and writers exchange through the access file (spec §4.3, §4.12).
func Touch(path string) error {
	now := unix.NsecToTimespec(unixNanoNow())
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{now, now}, 0)
}

// Close releases the mmap, the flock, and the file descriptor, in that
// order, on every exit path.
func (s *Segment) Close() error {
	var firstErr error
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap: %w", err)
		}
		s.data = nil
	}
	if s.lock != LockNone {
		unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
		s.lock = LockNone
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close: %w", err)
	}
	return firstErr
}
